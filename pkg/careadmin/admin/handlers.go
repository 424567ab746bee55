package admin

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/auth"
	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/principals"
)

// Handler handles admin requests
type Handler struct {
	db     *gorm.DB
	admins *principals.Store
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, admins *principals.Store) *Handler {
	return &Handler{db: db, admins: admins}
}

// CreateAdminRequest represents the request to provision an admin
type CreateAdminRequest struct {
	Email       string           `json:"email" binding:"required,email"`
	Password    string           `json:"password" binding:"required,min=8"`
	Name        string           `json:"name" binding:"required"`
	Role        models.AdminRole `json:"role" binding:"required"`
	Permissions []string         `json:"permissions"`
}

// UpdateAdminRequest represents the request to update an admin
type UpdateAdminRequest struct {
	Name        *string           `json:"name"`
	Role        *models.AdminRole `json:"role"`
	Permissions *[]string         `json:"permissions"`
	Password    *string           `json:"password" binding:"omitempty,min=8"`
}

// StatsResponse represents dashboard statistics
type StatsResponse struct {
	TotalMembers           int64 `json:"total_members"`
	ActiveMembers          int64 `json:"active_members"`
	TotalFacilities        int64 `json:"total_facilities"`
	ActiveFacilities       int64 `json:"active_facilities"`
	PendingInquiries       int64 `json:"pending_inquiries"`
	InProgressInquiries    int64 `json:"in_progress_inquiries"`
	ResolvedInquiries      int64 `json:"resolved_inquiries"`
	PublishedAnnouncements int64 `json:"published_announcements"`
	PublishedFAQs          int64 `json:"published_faqs"`
	ActiveAdmins           int64 `json:"active_admins"`
}

func validPermissions(perms []string) bool {
	all := models.AllPermissions()
	for _, p := range perms {
		if !slices.Contains(all, p) {
			return false
		}
	}
	return true
}

// ListAdmins returns admins matching the query (super admin only)
func (h *Handler) ListAdmins(c *gin.Context) {
	page := httpx.ParsePage(c)
	filter := principals.ListFilter{
		Search: c.Query("q"),
		Role:   models.AdminRole(c.Query("role")),
		Offset: page.Offset,
		Limit:  page.Limit,
	}
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active filter"})
			return
		}
		filter.Active = &parsed
	}

	admins, total, err := h.admins.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch admins"})
		return
	}

	c.JSON(http.StatusOK, httpx.NewList(admins, total, page))
}

// GetAdmin returns a single admin by ID (super admin only)
func (h *Handler) GetAdmin(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	admin, err := h.admins.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch admin"})
		return
	}
	if admin == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Admin not found"})
		return
	}

	c.JSON(http.StatusOK, admin)
}

// CreateAdmin provisions a new admin (super admin only)
func (h *Handler) CreateAdmin(c *gin.Context) {
	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}
	if !validPermissions(req.Permissions) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown permission"})
		return
	}

	admin, err := h.admins.Create(c.Request.Context(), principals.CreateParams{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		Role:        req.Role,
		Permissions: req.Permissions,
	})
	if errors.Is(err, principals.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create admin"})
		return
	}

	c.JSON(http.StatusCreated, admin)
}

// UpdateAdmin updates an admin's profile, role or permissions (super admin only)
func (h *Handler) UpdateAdmin(c *gin.Context) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	var req UpdateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != nil && !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}
	if req.Permissions != nil && !validPermissions(*req.Permissions) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown permission"})
		return
	}

	// Prevent a super admin from demoting themselves
	currentID, _ := auth.GetAdminID(c)
	if id == currentID && req.Role != nil && *req.Role != models.AdminRoleSuperAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	admin, err := h.admins.Update(c.Request.Context(), id, principals.UpdateParams{
		Name:        req.Name,
		Role:        req.Role,
		Permissions: req.Permissions,
		Password:    req.Password,
	})
	if errors.Is(err, principals.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Admin not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update admin"})
		return
	}

	c.JSON(http.StatusOK, admin)
}

// DeactivateAdmin blocks an admin from logging in (super admin only). Live
// sessions end at their next resolution.
func (h *Handler) DeactivateAdmin(c *gin.Context) {
	h.setActive(c, false)
}

// ActivateAdmin re-enables a deactivated admin (super admin only)
func (h *Handler) ActivateAdmin(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, ok := httpx.ParseID(c, "id")
	if !ok {
		return
	}

	currentID, _ := auth.GetAdminID(c)
	if id == currentID && !active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot deactivate yourself"})
		return
	}

	err := h.admins.SetActive(c.Request.Context(), id, active)
	if errors.Is(err, principals.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Admin not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update admin"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "active": active})
}

// GetStats returns dashboard statistics
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse
	db := h.db.WithContext(c.Request.Context())

	counts := []struct {
		dst   *int64
		model any
		where string
		args  []any
	}{
		{&stats.TotalMembers, &models.Member{}, "", nil},
		{&stats.ActiveMembers, &models.Member{}, "status = ?", []any{models.MemberStatusActive}},
		{&stats.TotalFacilities, &models.Facility{}, "", nil},
		{&stats.ActiveFacilities, &models.Facility{}, "active = ?", []any{true}},
		{&stats.PendingInquiries, &models.Inquiry{}, "status = ?", []any{models.InquiryStatusPending}},
		{&stats.InProgressInquiries, &models.Inquiry{}, "status = ?", []any{models.InquiryStatusInProgress}},
		{&stats.ResolvedInquiries, &models.Inquiry{}, "status = ?", []any{models.InquiryStatusResolved}},
		{&stats.PublishedAnnouncements, &models.Announcement{}, "published_at IS NOT NULL", nil},
		{&stats.PublishedFAQs, &models.FAQ{}, "published = ?", []any{true}},
		{&stats.ActiveAdmins, &models.AdminUser{}, "active = ?", []any{true}},
	}

	for _, q := range counts {
		query := db.Model(q.model)
		if q.where != "" {
			query = query.Where(q.where, q.args...)
		}
		if err := query.Count(q.dst).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
			return
		}
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group. The group
// must already require a super admin.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/admins", h.ListAdmins)
	rg.GET("/admins/:id", h.GetAdmin)
	rg.POST("/admins", h.CreateAdmin)
	rg.PUT("/admins/:id", h.UpdateAdmin)
	rg.POST("/admins/:id/deactivate", h.DeactivateAdmin)
	rg.POST("/admins/:id/activate", h.ActivateAdmin)
}
