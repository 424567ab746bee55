package session

import (
	"slices"

	"github.com/mitchellh/mapstructure"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// Annotations is the admin view carried in the provider's user metadata.
type Annotations struct {
	AdminID     uint     `mapstructure:"admin_id"`
	Email       string   `mapstructure:"email"`
	Role        string   `mapstructure:"role"`
	Permissions []string `mapstructure:"permissions"`
	Name        string   `mapstructure:"name"`
}

func annotationsFor(admin *models.AdminUser) Annotations {
	perms := admin.Permissions
	if perms == nil {
		perms = []string{}
	}
	return Annotations{
		AdminID:     admin.ID,
		Email:       admin.Email,
		Role:        string(admin.Role),
		Permissions: slices.Clone(perms),
		Name:        admin.Name,
	}
}

// Map renders the annotations as a metadata bag.
func (a Annotations) Map() map[string]any {
	return map[string]any{
		"admin_id":    a.AdminID,
		"email":       a.Email,
		"role":        a.Role,
		"permissions": a.Permissions,
		"name":        a.Name,
	}
}

// decodeAnnotations reads annotations from a metadata bag. ok is false when the
// bag carries no usable admin id.
func decodeAnnotations(metadata map[string]any) (Annotations, bool) {
	var ann Annotations
	if len(metadata) == 0 {
		return ann, false
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &ann,
	})
	if err != nil {
		return Annotations{}, false
	}
	if err := dec.Decode(metadata); err != nil {
		return Annotations{}, false
	}

	return ann, ann.AdminID != 0
}

// staleFor reports whether the annotations disagree with admin on id, role or permission set.
func (a Annotations) staleFor(admin *models.AdminUser) bool {
	if a.AdminID != admin.ID || a.Role != string(admin.Role) {
		return true
	}
	have := slices.Clone(a.Permissions)
	want := slices.Clone(admin.Permissions)
	slices.Sort(have)
	slices.Sort(want)
	return !slices.Equal(slices.Compact(have), slices.Compact(want))
}
