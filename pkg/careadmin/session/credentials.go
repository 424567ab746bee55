package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// Domains the provider refuses, and TLDs reserved for testing (RFC 2606, RFC 6761).
var (
	reservedDomains = map[string]bool{
		"example.com": true,
		"example.net": true,
		"example.org": true,
	}
	reservedTLDs = map[string]bool{
		"example":   true,
		"invalid":   true,
		"local":     true,
		"localhost": true,
		"test":      true,
	}
)

var syntheticLocalPart = regexp.MustCompile(`^admin_([0-9]+)$`)

// Credentials derives the provider credential of an admin. The provider never
// sees the admin's real password.
type Credentials struct {
	secret            []byte
	placeholderDomain string
	validate          *validator.Validate
}

// NewCredentials returns a deriver keyed by secret that rewrites unusable
// emails into placeholderDomain.
func NewCredentials(secret, placeholderDomain string) *Credentials {
	return &Credentials{
		secret:            []byte(secret),
		placeholderDomain: strings.ToLower(placeholderDomain),
		validate:          validator.New(),
	}
}

// Password returns the deterministic provider password for admin id.
func (c *Credentials) Password(adminID uint) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "careadmin:admin:%d", adminID)
	return hex.EncodeToString(mac.Sum(nil))
}

// Email returns the provider email for admin, rewriting addresses the provider
// would reject to admin_<id>@<placeholder domain>.
func (c *Credentials) Email(admin *models.AdminUser) string {
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if c.usable(email) {
		return email
	}
	return c.Synthetic(admin.ID)
}

// Synthetic returns the placeholder address of admin id.
func (c *Credentials) Synthetic(adminID uint) string {
	return fmt.Sprintf("admin_%d@%s", adminID, c.placeholderDomain)
}

// AdminIDFromEmail recovers the admin id from a placeholder address.
func (c *Credentials) AdminIDFromEmail(email string) (uint, bool) {
	local, domain, ok := strings.Cut(strings.ToLower(email), "@")
	if !ok || domain != c.placeholderDomain {
		return 0, false
	}
	m := syntheticLocalPart.FindStringSubmatch(local)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (c *Credentials) usable(email string) bool {
	if c.validate.Var(email, "required,email") != nil {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	if !strings.Contains(domain, ".") || reservedDomains[domain] {
		return false
	}
	tld := domain[strings.LastIndex(domain, ".")+1:]
	return !reservedTLDs[tld]
}
