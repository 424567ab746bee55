package database

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/config"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

func TestConnect_SQLite(t *testing.T) {
	log := logrus.New()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "careadmin.db")},
	}

	db, err := Connect(cfg, log)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&models.AdminUser{}))
	assert.True(t, db.Migrator().HasTable(&models.ProviderAccount{}))

	a := models.AdminUser{Email: "a@careadmin.app", PasswordHash: "x", Name: "A", Role: models.AdminRoleAdmin, Active: true}
	require.NoError(t, db.Create(&a).Error)
	b := models.AdminUser{Email: "a@careadmin.app", PasswordHash: "x", Name: "B", Role: models.AdminRoleAdmin, Active: true}
	assert.ErrorIs(t, db.Create(&b).Error, gorm.ErrDuplicatedKey)
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&models.Inquiry{}))
}
