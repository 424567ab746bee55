package inquiries

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/auth"
	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/retry"
)

const ticketCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Handler handles inquiry requests
type Handler struct {
	db     *gorm.DB
	now    func() time.Time
	ticket func(now time.Time) string
	retry  retry.Options
}

// NewHandler creates a new inquiries handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{
		db:     db,
		now:    time.Now,
		ticket: generateTicketNumber,
		retry:  retry.DefaultOptions,
	}
}

// generateTicketNumber returns INQ-YYYYMMDD-XXXX
func generateTicketNumber(now time.Time) string {
	b := make([]byte, 4)
	for i := range b {
		b[i] = ticketCharset[rand.IntN(len(ticketCharset))]
	}
	return "INQ-" + now.Format("20060102") + "-" + string(b)
}

// CreateInquiryRequest represents the request to log an inquiry
type CreateInquiryRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone"`
	FacilityID *uint  `json:"facility_id"`
	Subject    string `json:"subject" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

// StatusRequest represents the request to move an inquiry along
type StatusRequest struct {
	Status models.InquiryStatus `json:"status" binding:"required,oneof=pending in_progress resolved"`
}

// AnswerRequest represents the request to answer an inquiry
type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// nextStatus lists the transitions an inquiry may take.
var nextStatus = map[models.InquiryStatus][]models.InquiryStatus{
	models.InquiryStatusPending:    {models.InquiryStatusInProgress, models.InquiryStatusResolved},
	models.InquiryStatusInProgress: {models.InquiryStatusResolved},
}

func canTransition(from, to models.InquiryStatus) bool {
	for _, s := range nextStatus[from] {
		if s == to {
			return true
		}
	}
	return false
}

// List returns inquiries matching the query, newest first
func (h *Handler) List(c *gin.Context) {
	page := httpx.ParsePage(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.Inquiry{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if facilityID := c.Query("facility_id"); facilityID != "" {
		query = query.Where("facility_id = ?", facilityID)
	}
	if q := c.Query("q"); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(subject) LIKE ? OR LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(ticket_number) LIKE ?", like, like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count inquiries"})
		return
	}

	var inquiries []models.Inquiry
	if err := query.Order("created_at DESC, id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&inquiries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inquiries"})
		return
	}

	c.JSON(http.StatusOK, httpx.NewList(inquiries, total, page))
}

// Get returns a single inquiry by ID or ticket number
func (h *Handler) Get(c *gin.Context) {
	var inquiry models.Inquiry
	key := c.Param("id")

	query := h.db
	if strings.HasPrefix(key, "INQ-") {
		query = query.Where("ticket_number = ?", key)
	} else {
		id, ok := httpx.ParseID(c, "id")
		if !ok {
			return
		}
		query = query.Where("id = ?", id)
	}

	if err := query.First(&inquiry).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inquiry not found"})
		return
	}

	c.JSON(http.StatusOK, inquiry)
}

// Create logs an inquiry under a fresh ticket number
func (h *Handler) Create(c *gin.Context) {
	var req CreateInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var inquiry models.Inquiry
	err := retry.OnConflict(c.Request.Context(), h.retry, func(int) error {
		inquiry = models.Inquiry{
			TicketNumber: h.ticket(h.now()),
			Name:         req.Name,
			Email:        req.Email,
			Phone:        req.Phone,
			FacilityID:   req.FacilityID,
			Subject:      req.Subject,
			Message:      req.Message,
			Status:       models.InquiryStatusPending,
		}
		return h.db.WithContext(c.Request.Context()).Create(&inquiry).Error
	})
	if errors.Is(err, retry.ErrPersistentConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "Could not allocate a ticket number, please try again"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create inquiry"})
		return
	}

	c.JSON(http.StatusCreated, inquiry)
}

// UpdateStatus moves an inquiry forward through pending, in_progress and resolved
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var inquiry models.Inquiry
	if err := h.db.First(&inquiry, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inquiry not found"})
		return
	}
	if inquiry.Status == req.Status {
		c.JSON(http.StatusOK, inquiry)
		return
	}
	if !canTransition(inquiry.Status, req.Status) {
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot move inquiry from " + string(inquiry.Status) + " to " + string(req.Status)})
		return
	}

	// Guard against a concurrent transition.
	res := h.db.Model(&models.Inquiry{}).
		Where("id = ? AND status = ?", id, inquiry.Status).
		Update("status", req.Status)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update inquiry"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Inquiry was updated concurrently, please reload"})
		return
	}

	h.db.First(&inquiry, id)
	c.JSON(http.StatusOK, inquiry)
}

// Answer records the reply to an inquiry and resolves it
func (h *Handler) Answer(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}
	adminID, ok := auth.GetAdminID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var inquiry models.Inquiry
	if err := h.db.First(&inquiry, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inquiry not found"})
		return
	}

	now := h.now()
	if err := h.db.Model(&inquiry).Updates(map[string]interface{}{
		"answer":         req.Answer,
		"answered_by_id": adminID,
		"answered_at":    now,
		"status":         models.InquiryStatusResolved,
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer inquiry"})
		return
	}

	h.db.First(&inquiry, id)
	c.JSON(http.StatusOK, inquiry)
}

// Delete soft-deletes an inquiry
func (h *Handler) Delete(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	res := h.db.Delete(&models.Inquiry{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete inquiry"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inquiry not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Inquiry deleted successfully"})
}

// RegisterRoutes registers inquiry routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id/status", h.UpdateStatus)
	rg.POST("/:id/answer", h.Answer)
	rg.DELETE("/:id", h.Delete)
}
