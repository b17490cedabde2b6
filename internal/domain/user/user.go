package user

import (
	"context"
	"errors"
	"strings"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
}

// IsAnonymous reports whether u represents an unauthenticated viewer.
func (u *User) IsAnonymous() bool {
	return u == nil || u.ID == 0
}

// DirectoryIdentity maps the user to the identifier and identifier type the
// membership directory understands.
func (u *User) DirectoryIdentity(homeDomain string) (string, IdentityType) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if local, domain, ok := strings.Cut(email, "@"); ok && domain == strings.ToLower(homeDomain) {
		return local, IdentityUser
	}
	return email, IdentityString
}

type IdentityType string

const (
	IdentityUser   IdentityType = "USER"
	IdentityString IdentityType = "STRING"
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, u *User) error
}
