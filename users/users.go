package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// RoleType is the application role the backend assigns to a profile.
type RoleType string

const (
	RoleAdmin       RoleType = "admin"        // Manages every school and user
	RoleSchoolAdmin RoleType = "school_admin" // Manages a single school
	RoleDriver      RoleType = "driver"
	RoleParent      RoleType = "parent"
)

var roles = map[RoleType]struct{}{
	RoleAdmin:       {},
	RoleSchoolAdmin: {},
	RoleDriver:      {},
	RoleParent:      {},
}

func (r RoleType) Valid() bool {
	_, ok := roles[r]
	return ok
}

// User is the backend-owned profile of an authenticated principal. The client
// only ever holds copies taken from backend responses.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   *string   `json:"firstName,omitempty"`
	LastName    *string   `json:"lastName,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Role        RoleType  `json:"role"`
	FirebaseUID *string   `json:"firebaseUid,omitempty"` // External identity the profile is linked to
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a copy of u that shares no memory with it, or nil when u is nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.FirstName = utils.Clone(u.FirstName)
	c.LastName = utils.Clone(u.LastName)
	c.Phone = utils.Clone(u.Phone)
	c.FirebaseUID = utils.Clone(u.FirebaseUID)
	return &c
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasRole reports whether the profile is active and holds one of the roles.
func (u *User) HasRole(roles ...RoleType) bool {
	if u == nil || !u.Active {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) == 0 {
		return u.Email
	}
	return strings.Join(parts, " ")
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
