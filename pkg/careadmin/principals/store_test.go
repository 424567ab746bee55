package principals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikepea/careadmin/pkg/careadmin/database"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	return NewStore(logrus.New(), db)
}

func createAdmin(t *testing.T, s *Store, email string) *models.AdminUser {
	t.Helper()
	admin, err := s.Create(context.Background(), CreateParams{
		Email:       email,
		Password:    "correct-horse",
		Name:        "Test Admin",
		Role:        models.AdminRoleAdmin,
		Permissions: []string{models.PermissionMembers},
	})
	require.NoError(t, err)
	return admin
}

func TestPasswordHashing(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	require.NoError(t, err)
	assert.NotEqual(t, password, hash)
	assert.True(t, CheckPassword(password, hash))
	assert.False(t, CheckPassword("wrongpassword", hash))
}

func TestVerifyCredentials(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	admin := createAdmin(t, s, "Carer@Example.com")

	rows, err := s.VerifyCredentials(ctx, "carer@example.com", "correct-horse")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, admin.ID, rows[0].ID)

	rows, err = s.VerifyCredentials(ctx, "carer@example.com", "wrong")
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.VerifyCredentials(ctx, "nobody@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestVerifyCredentials_ReturnsInactive(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	admin := createAdmin(t, s, "off@example.com")
	require.NoError(t, s.SetActive(ctx, admin.ID, false))

	rows, err := s.VerifyCredentials(ctx, "off@example.com", "correct-horse")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Active)
}

func TestPointReads(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	admin := createAdmin(t, s, "reads@example.com")

	got, err := s.GetActiveByID(ctx, admin.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = s.GetByEmail(ctx, " READS@example.com ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, admin.ID, got.ID)

	got, err = s.GetBySubjectID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetActiveByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SetActive(ctx, admin.ID, false))
	got, err = s.GetActiveByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "inactive admins are not returned by GetActiveByID")

	got, err = s.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestRecordLogin_LinksOnce(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	admin := createAdmin(t, s, "link@example.com")

	first := time.Now().Add(-time.Minute).UTC()
	stored, err := s.RecordLogin(ctx, admin.ID, "sub-1", first)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", stored)

	second := time.Now().UTC()
	stored, err = s.RecordLogin(ctx, admin.ID, "sub-2", second)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", stored, "an existing link is never overwritten")

	got, err := s.GetBySubjectID(ctx, "sub-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, second, *got.LastLoginAt, time.Second)
}

func TestRecordLogin_StampOnly(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	admin := createAdmin(t, s, "stamp@example.com")

	stored, err := s.RecordLogin(ctx, admin.ID, "", time.Now())
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, err = s.RecordLogin(ctx, 4242, "sub", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordLogin_ConcurrentFirstLinks(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	admin := createAdmin(t, s, "race@example.com")

	subjects := []string{"sub-a", "sub-b", "sub-c", "sub-d"}
	results := make([]string, len(subjects))

	var wg sync.WaitGroup
	for i, sub := range subjects {
		wg.Add(1)
		go func(i int, sub string) {
			defer wg.Done()
			stored, err := s.RecordLogin(ctx, admin.ID, sub, time.Now())
			assert.NoError(t, err)
			results[i] = stored
		}(i, sub)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r, "every login observes the same linked subject")
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	s := setupStore(t)
	createAdmin(t, s, "dup@example.com")

	_, err := s.Create(context.Background(), CreateParams{
		Email: "DUP@example.com", Password: "x", Name: "Dup", Role: models.AdminRoleAdmin,
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestCreate_InvalidRole(t *testing.T) {
	s := setupStore(t)
	_, err := s.Create(context.Background(), CreateParams{
		Email: "r@example.com", Password: "x", Name: "R", Role: "owner",
	})
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	admin := createAdmin(t, s, "upd@example.com")

	role := models.AdminRoleSuperAdmin
	perms := []string{models.PermissionFAQs, models.PermissionInquiries}
	pw := "new-password"
	updated, err := s.Update(ctx, admin.ID, UpdateParams{Role: &role, Permissions: &perms, Password: &pw})
	require.NoError(t, err)
	assert.Equal(t, models.AdminRoleSuperAdmin, updated.Role)
	assert.Equal(t, perms, updated.Permissions)

	rows, err := s.VerifyCredentials(ctx, "upd@example.com", "new-password")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = s.Update(ctx, 999, UpdateParams{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	createAdmin(t, s, "alice@example.com")
	bob := createAdmin(t, s, "bob@example.com")
	createAdmin(t, s, "carol@example.com")
	require.NoError(t, s.SetActive(ctx, bob.ID, false))

	all, total, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), total)

	active := true
	page, total, err := s.List(ctx, ListFilter{Active: &active, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, int64(2), total)

	found, _, err := s.List(ctx, ListFilter{Search: "BOB"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].ID)
}

func TestEnsureSuperAdmin(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.EnsureSuperAdmin(ctx, "root@careadmin.app", "Root", "")
	assert.Error(t, err)

	created, err := s.EnsureSuperAdmin(ctx, "root@careadmin.app", "Root", "bootstrap-pass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureSuperAdmin(ctx, "root2@careadmin.app", "Root", "bootstrap-pass")
	require.NoError(t, err)
	assert.False(t, created)
}
