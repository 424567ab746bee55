package members

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// Handler handles member requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new members handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateMemberRequest represents the request to register a member
type CreateMemberRequest struct {
	Email      string              `json:"email" binding:"required,email"`
	Name       string              `json:"name" binding:"required"`
	Phone      string              `json:"phone"`
	BirthDate  *time.Time          `json:"birth_date"`
	CareLevel  int                 `json:"care_level" binding:"min=0,max=5"`
	Status     models.MemberStatus `json:"status" binding:"omitempty,oneof=active suspended withdrawn"`
	FacilityID *uint               `json:"facility_id"`
	Notes      string              `json:"notes"`
}

// UpdateMemberRequest represents the request to update a member
type UpdateMemberRequest struct {
	Name       *string              `json:"name" binding:"omitempty,min=1"`
	Phone      *string              `json:"phone"`
	BirthDate  *time.Time           `json:"birth_date"`
	CareLevel  *int                 `json:"care_level" binding:"omitempty,min=0,max=5"`
	Status     *models.MemberStatus `json:"status" binding:"omitempty,oneof=active suspended withdrawn"`
	FacilityID *uint                `json:"facility_id"`
	Notes      *string              `json:"notes"`
}

func (h *Handler) facilityExists(id uint) bool {
	var count int64
	h.db.Model(&models.Facility{}).Where("id = ?", id).Count(&count)
	return count > 0
}

// List returns members matching the query
func (h *Handler) List(c *gin.Context) {
	page := httpx.ParsePage(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.Member{})

	if q := c.Query("q"); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", like, like, like)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if facilityID := c.Query("facility_id"); facilityID != "" {
		query = query.Where("facility_id = ?", facilityID)
	}
	if level := c.Query("care_level"); level != "" {
		parsed, err := strconv.Atoi(level)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid care level"})
			return
		}
		query = query.Where("care_level = ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count members"})
		return
	}

	var members []models.Member
	if err := query.Preload("Facility").
		Order("created_at DESC, id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&members).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	c.JSON(http.StatusOK, httpx.NewList(members, total, page))
}

// Get returns a single member
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var member models.Member
	if err := h.db.Preload("Facility").First(&member, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	c.JSON(http.StatusOK, member)
}

// Create registers a member
func (h *Handler) Create(c *gin.Context) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FacilityID != nil && !h.facilityExists(*req.FacilityID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Facility not found"})
		return
	}

	member := models.Member{
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Name:       req.Name,
		Phone:      req.Phone,
		BirthDate:  req.BirthDate,
		CareLevel:  req.CareLevel,
		Status:     req.Status,
		FacilityID: req.FacilityID,
		Notes:      req.Notes,
	}
	if member.Status == "" {
		member.Status = models.MemberStatusActive
	}

	if err := h.db.Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "A member with this email already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create member"})
		return
	}

	c.JSON(http.StatusCreated, member)
}

// Update changes a member's details
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var member models.Member
	if err := h.db.First(&member, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.BirthDate != nil {
		updates["birth_date"] = *req.BirthDate
	}
	if req.CareLevel != nil {
		updates["care_level"] = *req.CareLevel
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.FacilityID != nil {
		if !h.facilityExists(*req.FacilityID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Facility not found"})
			return
		}
		updates["facility_id"] = *req.FacilityID
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if len(updates) > 0 {
		if err := h.db.Model(&member).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update member"})
			return
		}
	}

	h.db.Preload("Facility").First(&member, id)
	c.JSON(http.StatusOK, member)
}

// Delete soft-deletes a member
func (h *Handler) Delete(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	res := h.db.Delete(&models.Member{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete member"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member deleted successfully"})
}

// RegisterRoutes registers member routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
