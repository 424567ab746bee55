package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikepea/careadmin/pkg/careadmin/database"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/principals"
)

var (
	adminEmail       string
	adminName        string
	adminPassword    string
	adminRole        string
	adminPermissions []string
)

var adminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manage admin accounts",
}

var adminsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision an admin account",
	RunE:  runAdminsCreate,
}

func init() {
	adminsCreateCmd.Flags().StringVar(&adminEmail, "email", "", "admin email (required)")
	adminsCreateCmd.Flags().StringVar(&adminName, "name", "", "display name (required)")
	adminsCreateCmd.Flags().StringVar(&adminPassword, "password", "", "initial password, at least 8 characters (required)")
	adminsCreateCmd.Flags().StringVar(&adminRole, "role", string(models.AdminRoleAdmin), "role (admin, super_admin)")
	adminsCreateCmd.Flags().StringSliceVar(&adminPermissions, "permissions", nil,
		"granted permissions ("+strings.Join(models.AllPermissions(), ", ")+")")
	_ = adminsCreateCmd.MarkFlagRequired("email")
	_ = adminsCreateCmd.MarkFlagRequired("name")
	_ = adminsCreateCmd.MarkFlagRequired("password")

	adminsCmd.AddCommand(adminsCreateCmd)
	rootCmd.AddCommand(adminsCmd)
}

func runAdminsCreate(cmd *cobra.Command, args []string) error {
	params, err := adminParams()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	created, err := principals.NewStore(log, db).Create(cmd.Context(), params)
	if errors.Is(err, principals.ErrEmailTaken) {
		return fmt.Errorf("an admin with email %s already exists", params.Email)
	}
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}

	log.WithField("admin_id", created.ID).
		WithField("email", created.Email).
		WithField("role", created.Role).
		Info("Created admin")

	return nil
}

// adminParams validates the create flags.
func adminParams() (principals.CreateParams, error) {
	role := models.AdminRole(adminRole)
	if !role.Valid() {
		return principals.CreateParams{}, fmt.Errorf("invalid role %q", adminRole)
	}
	if len(adminPassword) < 8 {
		return principals.CreateParams{}, errors.New("password must be at least 8 characters")
	}

	valid := make(map[string]bool)
	for _, p := range models.AllPermissions() {
		valid[p] = true
	}
	perms := adminPermissions
	if role == models.AdminRoleSuperAdmin {
		perms = models.AllPermissions()
	}
	for _, p := range perms {
		if !valid[p] {
			return principals.CreateParams{}, fmt.Errorf("unknown permission %q", p)
		}
	}

	return principals.CreateParams{
		Email:       adminEmail,
		Password:    adminPassword,
		Name:        adminName,
		Role:        role,
		Permissions: perms,
	}, nil
}
