package inquiries

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/auth"
	"github.com/mikepea/careadmin/pkg/careadmin/database"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/retry"
)

var fixedNow = time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) (*gorm.DB, *Handler, *gin.Engine) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	h := NewHandler(db)
	h.now = func() time.Time { return fixedNow }
	h.retry = retry.Options{Attempts: 3, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/inquiries", func(c *gin.Context) {
		c.Set(auth.ContextKeyAdmin, &models.AdminUser{ID: 3, Role: models.AdminRoleAdmin})
		c.Next()
	})
	h.RegisterRoutes(rg)
	return db, h, r
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

func decode(t *testing.T, w *httptest.ResponseRecorder) models.Inquiry {
	t.Helper()
	var inq models.Inquiry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inq))
	return inq
}

var validRequest = CreateInquiryRequest{
	Name:    "Pat",
	Email:   "pat@family.org",
	Subject: "Day care places",
	Message: "Are there openings in May?",
}

func TestGenerateTicketNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^INQ-20260402-[A-Z2-9]{4}$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, pattern, generateTicketNumber(fixedNow))
	}
}

func TestCreateInquiry(t *testing.T) {
	_, _, r := setupTestHandler(t)

	w := doJSON(r, http.MethodPost, "/inquiries", validRequest)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inq := decode(t, w)
	assert.Equal(t, models.InquiryStatusPending, inq.Status)
	assert.Regexp(t, `^INQ-20260402-`, inq.TicketNumber)

	w = doJSON(r, http.MethodGet, "/inquiries/"+inq.TicketNumber, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, inq.ID, decode(t, w).ID)

	w = doJSON(r, http.MethodPost, "/inquiries", CreateInquiryRequest{Name: "No email", Subject: "s", Message: "m"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateInquiry_RetriesTicketCollision(t *testing.T) {
	_, h, r := setupTestHandler(t)

	tickets := []string{"INQ-20260402-AAAA", "INQ-20260402-AAAA", "INQ-20260402-BBBB"}
	calls := 0
	h.ticket = func(time.Time) string {
		tn := tickets[calls]
		calls++
		return tn
	}

	w := doJSON(r, http.MethodPost, "/inquiries", validRequest)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "INQ-20260402-AAAA", decode(t, w).TicketNumber)

	w = doJSON(r, http.MethodPost, "/inquiries", validRequest)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "INQ-20260402-BBBB", decode(t, w).TicketNumber)
	assert.Equal(t, 3, calls)
}

func TestCreateInquiry_PersistentCollision(t *testing.T) {
	_, h, r := setupTestHandler(t)
	h.ticket = func(time.Time) string { return "INQ-20260402-SAME" }

	require.Equal(t, http.StatusCreated, doJSON(r, http.MethodPost, "/inquiries", validRequest).Code)

	w := doJSON(r, http.MethodPost, "/inquiries", validRequest)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ticket number")
}

func TestUpdateStatus(t *testing.T) {
	_, _, r := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, doJSON(r, http.MethodPost, "/inquiries", validRequest).Code)

	tests := []struct {
		status models.InquiryStatus
		code   int
	}{
		{models.InquiryStatusInProgress, http.StatusOK},
		{models.InquiryStatusInProgress, http.StatusOK},
		{models.InquiryStatusPending, http.StatusConflict},
		{models.InquiryStatusResolved, http.StatusOK},
		{models.InquiryStatusInProgress, http.StatusConflict},
		{"closed", http.StatusBadRequest},
	}

	for _, tt := range tests {
		w := doJSON(r, http.MethodPut, "/inquiries/1/status", StatusRequest{Status: tt.status})
		assert.Equal(t, tt.code, w.Code, "to %s: %s", tt.status, w.Body.String())
	}
}

func TestAnswer(t *testing.T) {
	_, _, r := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, doJSON(r, http.MethodPost, "/inquiries", validRequest).Code)

	w := doJSON(r, http.MethodPost, "/inquiries/1/answer", AnswerRequest{Answer: "Yes, two places."})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	inq := decode(t, w)
	assert.Equal(t, models.InquiryStatusResolved, inq.Status)
	assert.Equal(t, "Yes, two places.", inq.Answer)
	require.NotNil(t, inq.AnsweredByID)
	assert.Equal(t, uint(3), *inq.AnsweredByID)
	assert.NotNil(t, inq.AnsweredAt)

	w = doJSON(r, http.MethodPost, "/inquiries/1/answer", AnswerRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPost, "/inquiries/9/answer", AnswerRequest{Answer: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndDelete(t *testing.T) {
	_, _, r := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, doJSON(r, http.MethodPost, "/inquiries", validRequest).Code)
	other := validRequest
	other.Subject = "Transport"
	require.Equal(t, http.StatusCreated, doJSON(r, http.MethodPost, "/inquiries", other).Code)
	doJSON(r, http.MethodPut, "/inquiries/2/status", StatusRequest{Status: models.InquiryStatusInProgress})

	for query, total := range map[string]float64{
		"":                    2,
		"?status=pending":     1,
		"?q=transport":        1,
		"?status=resolved":    0,
		"?q=INQ-20260402":     2,
		"?status=in_progress": 1,
	} {
		w := doJSON(r, http.MethodGet, "/inquiries"+query, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, total, resp["total"], query)
	}

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodDelete, "/inquiries/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/inquiries/1", nil).Code)
}
