package facilities

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

const facilityTypes = "nursing_home day_care assisted_living home_care"

// Handler handles facility requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new facilities handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateFacilityRequest represents the request to list a facility
type CreateFacilityRequest struct {
	Name        string              `json:"name" binding:"required"`
	Type        models.FacilityType `json:"type" binding:"required,oneof=nursing_home day_care assisted_living home_care"`
	Region      string              `json:"region"`
	Address     string              `json:"address"`
	Phone       string              `json:"phone"`
	Capacity    int                 `json:"capacity" binding:"min=0"`
	Description string              `json:"description"`
	Active      *bool               `json:"active"`
}

// UpdateFacilityRequest represents the request to update a facility
type UpdateFacilityRequest struct {
	Name        *string              `json:"name" binding:"omitempty,min=1"`
	Type        *models.FacilityType `json:"type" binding:"omitempty,oneof=nursing_home day_care assisted_living home_care"`
	Region      *string              `json:"region"`
	Address     *string              `json:"address"`
	Phone       *string              `json:"phone"`
	Capacity    *int                 `json:"capacity" binding:"omitempty,min=0"`
	Description *string              `json:"description"`
	Active      *bool                `json:"active"`
}

// List returns facilities matching the query
func (h *Handler) List(c *gin.Context) {
	page := httpx.ParsePage(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.Facility{})

	if q := c.Query("q"); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(address) LIKE ?", like, like)
	}
	if t := c.Query("type"); t != "" {
		if !strings.Contains(" "+facilityTypes+" ", " "+t+" ") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid facility type"})
			return
		}
		query = query.Where("type = ?", t)
	}
	if region := c.Query("region"); region != "" {
		query = query.Where("region = ?", region)
	}
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active filter"})
			return
		}
		query = query.Where("active = ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count facilities"})
		return
	}

	var facilities []models.Facility
	if err := query.Order("name ASC, id ASC").Limit(page.Limit).Offset(page.Offset).Find(&facilities).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch facilities"})
		return
	}

	c.JSON(http.StatusOK, httpx.NewList(facilities, total, page))
}

// Get returns a single facility
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var facility models.Facility
	if err := h.db.First(&facility, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Facility not found"})
		return
	}

	c.JSON(http.StatusOK, facility)
}

// Create lists a new facility
func (h *Handler) Create(c *gin.Context) {
	var req CreateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	facility := models.Facility{
		Name:        req.Name,
		Type:        req.Type,
		Region:      req.Region,
		Address:     req.Address,
		Phone:       req.Phone,
		Capacity:    req.Capacity,
		Description: req.Description,
		Active:      req.Active == nil || *req.Active,
	}

	if err := h.db.Create(&facility).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create facility"})
		return
	}

	c.JSON(http.StatusCreated, facility)
}

// Update changes a facility's details
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var facility models.Facility
	if err := h.db.First(&facility, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Facility not found"})
		return
	}

	var req UpdateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.Region != nil {
		updates["region"] = *req.Region
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Capacity != nil {
		updates["capacity"] = *req.Capacity
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := h.db.Model(&facility).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update facility"})
			return
		}
	}

	h.db.First(&facility, id)
	c.JSON(http.StatusOK, facility)
}

// Delete soft-deletes a facility. Members keep their facility reference.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	res := h.db.Delete(&models.Facility{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete facility"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Facility not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Facility deleted successfully"})
}

// RegisterRoutes registers facility routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
