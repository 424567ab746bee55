package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/auth"
	"github.com/mikepea/careadmin/pkg/careadmin/database"
	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/principals"
)

func setupTest(t *testing.T) (*gorm.DB, *principals.Store) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	return db, principals.NewStore(log, db)
}

func setupTestRouter(db *gorm.DB, store *principals.Store, current *models.AdminUser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(auth.ContextKeyAdmin, current)
		c.Next()
	})
	NewHandler(db, store).RegisterRoutes(api)
	return r
}

func createTestAdmin(t *testing.T, store *principals.Store, email string, role models.AdminRole) *models.AdminUser {
	t.Helper()
	admin, err := store.Create(context.Background(), principals.CreateParams{
		Email:    email,
		Password: "password123",
		Name:     "Admin " + email,
		Role:     role,
	})
	require.NoError(t, err)
	return admin
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListAdmins(t *testing.T) {
	db, store := setupTest(t)
	owner := createTestAdmin(t, store, "owner@sunrise-care.co.uk", models.AdminRoleSuperAdmin)
	createTestAdmin(t, store, "lead@sunrise-care.co.uk", models.AdminRoleAdmin)
	gone := createTestAdmin(t, store, "gone@sunrise-care.co.uk", models.AdminRoleAdmin)
	require.NoError(t, store.SetActive(context.Background(), gone.ID, false))
	r := setupTestRouter(db, store, owner)

	tests := []struct {
		name  string
		query string
		total int64
		code  int
	}{
		{"all", "", 3, http.StatusOK},
		{"by role", "?role=super_admin", 1, http.StatusOK},
		{"inactive", "?active=false", 1, http.StatusOK},
		{"search", "?q=LEAD", 1, http.StatusOK},
		{"bad active filter", "?active=maybe", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, "/api/admins"+tt.query, nil)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			var resp httpx.List[models.AdminUser]
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.total, resp.Total)
			assert.Len(t, resp.Data, int(tt.total))
		})
	}

	w := doJSON(r, http.MethodGet, "/api/admins?limit=1&offset=1", nil)
	var resp httpx.List[models.AdminUser]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "lead@sunrise-care.co.uk", resp.Data[0].Email)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestGetAdmin(t *testing.T) {
	db, store := setupTest(t)
	owner := createTestAdmin(t, store, "owner@sunrise-care.co.uk", models.AdminRoleSuperAdmin)
	r := setupTestRouter(db, store, owner)

	w := doJSON(r, http.MethodGet, "/api/admins/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/admins/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/api/admins/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAdmin(t *testing.T) {
	db, store := setupTest(t)
	owner := createTestAdmin(t, store, "owner@sunrise-care.co.uk", models.AdminRoleSuperAdmin)
	r := setupTestRouter(db, store, owner)

	tests := []struct {
		name string
		body CreateAdminRequest
		code int
	}{
		{"valid", CreateAdminRequest{Email: "new@sunrise-care.co.uk", Password: "password123", Name: "New", Role: models.AdminRoleAdmin, Permissions: []string{models.PermissionFAQs}}, http.StatusCreated},
		{"duplicate", CreateAdminRequest{Email: "NEW@sunrise-care.co.uk", Password: "password123", Name: "Dup", Role: models.AdminRoleAdmin}, http.StatusConflict},
		{"short password", CreateAdminRequest{Email: "x@sunrise-care.co.uk", Password: "short", Name: "X", Role: models.AdminRoleAdmin}, http.StatusBadRequest},
		{"bad role", CreateAdminRequest{Email: "y@sunrise-care.co.uk", Password: "password123", Name: "Y", Role: "owner"}, http.StatusBadRequest},
		{"bad permission", CreateAdminRequest{Email: "z@sunrise-care.co.uk", Password: "password123", Name: "Z", Role: models.AdminRoleAdmin, Permissions: []string{"billing"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/admins", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}

	rows, err := store.VerifyCredentials(context.Background(), "new@sunrise-care.co.uk", "password123")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{models.PermissionFAQs}, rows[0].Permissions)
}

func TestUpdateAdmin(t *testing.T) {
	db, store := setupTest(t)
	owner := createTestAdmin(t, store, "owner@sunrise-care.co.uk", models.AdminRoleSuperAdmin)
	lead := createTestAdmin(t, store, "lead@sunrise-care.co.uk", models.AdminRoleAdmin)
	r := setupTestRouter(db, store, owner)

	perms := []string{models.PermissionMembers, models.PermissionInquiries}
	w := doJSON(r, http.MethodPut, "/api/admins/2", UpdateAdminRequest{Permissions: &perms})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, err := store.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, perms, got.Permissions)

	demote := models.AdminRoleAdmin
	w = doJSON(r, http.MethodPut, "/api/admins/1", UpdateAdminRequest{Role: &demote})
	assert.Equal(t, http.StatusBadRequest, w.Code, "cannot demote yourself")

	w = doJSON(r, http.MethodPut, "/api/admins/99", UpdateAdminRequest{Role: &demote})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeactivateAdmin(t *testing.T) {
	db, store := setupTest(t)
	owner := createTestAdmin(t, store, "owner@sunrise-care.co.uk", models.AdminRoleSuperAdmin)
	lead := createTestAdmin(t, store, "lead@sunrise-care.co.uk", models.AdminRoleAdmin)
	r := setupTestRouter(db, store, owner)

	w := doJSON(r, http.MethodPost, "/api/admins/1/deactivate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "cannot deactivate yourself")

	w = doJSON(r, http.MethodPost, "/api/admins/2/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	active, err := store.GetActiveByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	w = doJSON(r, http.MethodPost, "/api/admins/2/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	active, err = store.GetActiveByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.NotNil(t, active)

	w = doJSON(r, http.MethodPost, "/api/admins/99/activate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStats(t *testing.T) {
	db, store := setupTest(t)
	owner := createTestAdmin(t, store, "owner@sunrise-care.co.uk", models.AdminRoleSuperAdmin)
	r := setupTestRouter(db, store, owner)

	now := time.Now()
	require.NoError(t, db.Create(&models.Facility{Name: "Sunrise", Type: models.FacilityTypeNursingHome, Active: true}).Error)
	require.NoError(t, db.Create(&models.Member{Email: "m1@x.org", Name: "M1", Status: models.MemberStatusActive}).Error)
	require.NoError(t, db.Create(&models.Member{Email: "m2@x.org", Name: "M2", Status: models.MemberStatusSuspended}).Error)
	require.NoError(t, db.Create(&models.Inquiry{TicketNumber: "INQ-1", Name: "A", Email: "a@x.org", Subject: "s", Message: "m", Status: models.InquiryStatusPending}).Error)
	require.NoError(t, db.Create(&models.Announcement{Title: "t", Body: "b", AuthorID: owner.ID, PublishedAt: &now}).Error)
	require.NoError(t, db.Create(&models.Announcement{Title: "draft", Body: "b", AuthorID: owner.ID}).Error)

	w := doJSON(r, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalMembers)
	assert.Equal(t, int64(1), stats.ActiveMembers)
	assert.Equal(t, int64(1), stats.ActiveFacilities)
	assert.Equal(t, int64(1), stats.PendingInquiries)
	assert.Equal(t, int64(1), stats.PublishedAnnouncements)
	assert.Equal(t, int64(1), stats.ActiveAdmins)
}
