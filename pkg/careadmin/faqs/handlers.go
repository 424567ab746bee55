package faqs

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// Handler handles FAQ requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new FAQ handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateFAQRequest represents the request to add a FAQ entry
type CreateFAQRequest struct {
	Question  string `json:"question" binding:"required"`
	Answer    string `json:"answer" binding:"required"`
	Category  string `json:"category"`
	SortOrder *int   `json:"sort_order"`
	Published bool   `json:"published"`
}

// UpdateFAQRequest represents the request to update a FAQ entry
type UpdateFAQRequest struct {
	Question  *string `json:"question" binding:"omitempty,min=1"`
	Answer    *string `json:"answer" binding:"omitempty,min=1"`
	Category  *string `json:"category"`
	SortOrder *int    `json:"sort_order"`
	Published *bool   `json:"published"`
}

// List returns FAQ entries in display order
func (h *Handler) List(c *gin.Context) {
	page := httpx.ParsePage(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.FAQ{})

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if published := c.Query("published"); published != "" {
		parsed, err := strconv.ParseBool(published)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid published filter"})
			return
		}
		query = query.Where("published = ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count FAQs"})
		return
	}

	var faqs []models.FAQ
	if err := query.Order("category ASC, sort_order ASC, id ASC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&faqs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch FAQs"})
		return
	}

	c.JSON(http.StatusOK, httpx.NewList(faqs, total, page))
}

// Get returns a single FAQ entry
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var faq models.FAQ
	if err := h.db.First(&faq, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "FAQ not found"})
		return
	}

	c.JSON(http.StatusOK, faq)
}

// Create adds a FAQ entry. Without a sort order it goes last in its category.
func (h *Handler) Create(c *gin.Context) {
	var req CreateFAQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	faq := models.FAQ{
		Question:  req.Question,
		Answer:    req.Answer,
		Category:  req.Category,
		Published: req.Published,
	}
	if req.SortOrder != nil {
		faq.SortOrder = *req.SortOrder
	} else {
		var last int
		h.db.Model(&models.FAQ{}).
			Where("category = ?", req.Category).
			Select("COALESCE(MAX(sort_order), 0)").
			Scan(&last)
		faq.SortOrder = last + 1
	}

	if err := h.db.Create(&faq).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create FAQ"})
		return
	}

	c.JSON(http.StatusCreated, faq)
}

// Update changes a FAQ entry
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var faq models.FAQ
	if err := h.db.First(&faq, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "FAQ not found"})
		return
	}

	var req UpdateFAQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Question != nil {
		updates["question"] = *req.Question
	}
	if req.Answer != nil {
		updates["answer"] = *req.Answer
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if req.Published != nil {
		updates["published"] = *req.Published
	}

	if len(updates) > 0 {
		if err := h.db.Model(&faq).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update FAQ"})
			return
		}
	}

	h.db.First(&faq, id)
	c.JSON(http.StatusOK, faq)
}

// Delete soft-deletes a FAQ entry
func (h *Handler) Delete(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	res := h.db.Delete(&models.FAQ{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete FAQ"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "FAQ not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "FAQ deleted successfully"})
}

// RegisterRoutes registers FAQ routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
