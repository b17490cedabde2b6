package service

import (
	"context"
	"errors"

	"github.com/khoahotran/lecture-video/internal/domain/user"
)

// ErrDirectoryNullResult is the directory's "no such principal" answer; callers
// treat it as empty membership.
var ErrDirectoryNullResult = errors.New("directory returned a null result")

type ListAttributes struct {
	Name        string
	MailList    bool
	Description string
}

type Directory interface {
	UserLists(ctx context.Context, identifier string, kind user.IdentityType) ([]string, error)
	ListMembers(ctx context.Context, list string) ([]string, error)
	ListAttributes(ctx context.Context, list string) (*ListAttributes, error)
}

// UserMembership is the cached per-user membership state.
type UserMembership struct {
	MemberOf    []string `json:"member_of"`
	NotMemberOf []string `json:"not_member_of"`
}

type MembershipCache interface {
	Get(ctx context.Context, userKey string) (*UserMembership, bool, error)
	Set(ctx context.Context, userKey string, m *UserMembership) error
	Delete(ctx context.Context, userKey string) error
}
