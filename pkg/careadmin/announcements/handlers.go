package announcements

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/auth"
	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// Handler handles announcement requests
type Handler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewHandler creates a new announcements handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, now: time.Now}
}

// CreateAnnouncementRequest represents the request to write an announcement
type CreateAnnouncementRequest struct {
	Title    string `json:"title" binding:"required"`
	Body     string `json:"body" binding:"required"`
	Category string `json:"category"`
	Pinned   bool   `json:"pinned"`
	Publish  bool   `json:"publish"`
}

// UpdateAnnouncementRequest represents the request to update an announcement.
// Publish moves it in or out of draft.
type UpdateAnnouncementRequest struct {
	Title    *string `json:"title" binding:"omitempty,min=1"`
	Body     *string `json:"body" binding:"omitempty,min=1"`
	Category *string `json:"category"`
	Pinned   *bool   `json:"pinned"`
	Publish  *bool   `json:"publish"`
}

// List returns announcements, pinned first, newest first
func (h *Handler) List(c *gin.Context) {
	page := httpx.ParsePage(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.Announcement{})

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if published := c.Query("published"); published != "" {
		parsed, err := strconv.ParseBool(published)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid published filter"})
			return
		}
		if parsed {
			query = query.Where("published_at IS NOT NULL")
		} else {
			query = query.Where("published_at IS NULL")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count announcements"})
		return
	}

	var announcements []models.Announcement
	if err := query.Order("pinned DESC, created_at DESC, id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&announcements).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch announcements"})
		return
	}

	c.JSON(http.StatusOK, httpx.NewList(announcements, total, page))
}

// Get returns a single announcement
func (h *Handler) Get(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var announcement models.Announcement
	if err := h.db.First(&announcement, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
		return
	}

	c.JSON(http.StatusOK, announcement)
}

// Create writes an announcement authored by the current admin
func (h *Handler) Create(c *gin.Context) {
	adminID, ok := auth.GetAdminID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	announcement := models.Announcement{
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
		Pinned:   req.Pinned,
		AuthorID: adminID,
	}
	if req.Publish {
		now := h.now()
		announcement.PublishedAt = &now
	}

	if err := h.db.Create(&announcement).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create announcement"})
		return
	}

	c.JSON(http.StatusCreated, announcement)
}

// Update changes an announcement
func (h *Handler) Update(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var announcement models.Announcement
	if err := h.db.First(&announcement, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
		return
	}

	var req UpdateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Body != nil {
		updates["body"] = *req.Body
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Pinned != nil {
		updates["pinned"] = *req.Pinned
	}
	if req.Publish != nil {
		switch {
		case *req.Publish && announcement.PublishedAt == nil:
			updates["published_at"] = h.now()
		case !*req.Publish:
			updates["published_at"] = nil
		}
	}

	if len(updates) > 0 {
		if err := h.db.Model(&announcement).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update announcement"})
			return
		}
	}

	h.db.First(&announcement, id)
	c.JSON(http.StatusOK, announcement)
}

// Delete soft-deletes an announcement
func (h *Handler) Delete(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	res := h.db.Delete(&models.Announcement{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete announcement"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Announcement not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Announcement deleted successfully"})
}

// RegisterRoutes registers announcement routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
