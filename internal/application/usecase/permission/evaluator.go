package permission

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/domain/collection"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/internal/domain/video"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// MembershipChecker is satisfied by membership.Resolver.
type MembershipChecker interface {
	HasCommonLists(ctx context.Context, u *user.User, candidates []string) (bool, error)
}

type Decision struct {
	CanView bool `json:"can_view"`
	IsAdmin bool `json:"is_admin"`
	// Degraded is set when the directory could not be reached and only the
	// public slice was considered.
	Degraded bool `json:"degraded,omitempty"`
}

type Evaluator struct {
	membership MembershipChecker
	logger     logger.Logger
}

func NewEvaluator(m MembershipChecker, log logger.Logger) *Evaluator {
	return &Evaluator{membership: m, logger: log}
}

func isOwner(u *user.User, c *collection.Collection) bool {
	return !u.IsAnonymous() && c.OwnerID == u.ID
}

// CanAdminCollection: superuser, owner, or member of an admin list.
func (e *Evaluator) CanAdminCollection(ctx context.Context, u *user.User, c *collection.Collection) (bool, error) {
	if u.IsAnonymous() {
		return false, nil
	}
	if u.IsSuperuser || isOwner(u, c) {
		return true, nil
	}
	return e.membership.HasCommonLists(ctx, u, c.AdminLists)
}

// CanViewCollection grants viewing of a collection's listing.
func (e *Evaluator) CanViewCollection(ctx context.Context, u *user.User, c *collection.Collection) (Decision, error) {
	if u.IsAnonymous() {
		return Decision{}, nil
	}
	if u.IsSuperuser || isOwner(u, c) {
		return Decision{CanView: true, IsAdmin: true}, nil
	}
	lists := union(c.AdminLists, c.ViewLists)
	ok, err := e.membership.HasCommonLists(ctx, u, lists)
	if err != nil {
		return e.degrade(u, err, false)
	}
	if ok {
		admin, err := e.membership.HasCommonLists(ctx, u, c.AdminLists)
		if err != nil {
			return e.degrade(u, err, true)
		}
		return Decision{CanView: true, IsAdmin: admin}, nil
	}
	return Decision{CanView: c.IsLoggedInOnly && len(lists) == 0}, nil
}

// VideoAccess evaluates, in order: superuser, public flag, ownership, list
// membership, then logged-in-only for unrestricted videos.
func (e *Evaluator) VideoAccess(ctx context.Context, u *user.User, v *video.Video, c *collection.Collection) (Decision, error) {
	if v.CollectionKey != c.Key {
		return Decision{}, apperror.NewInvalidInput("video does not belong to collection", nil)
	}
	if !u.IsAnonymous() && u.IsSuperuser {
		return Decision{CanView: true, IsAdmin: true}, nil
	}
	if u.IsAnonymous() {
		return Decision{CanView: v.IsPublic}, nil
	}
	if isOwner(u, c) {
		return Decision{CanView: true, IsAdmin: true}, nil
	}

	admin, err := e.membership.HasCommonLists(ctx, u, c.AdminLists)
	if err != nil {
		return e.degrade(u, err, v.IsPublic)
	}
	if admin {
		return Decision{CanView: true, IsAdmin: true}, nil
	}
	if v.IsPublic {
		return Decision{CanView: true}, nil
	}

	lists := union(c.ViewLists, v.ViewLists)
	member, err := e.membership.HasCommonLists(ctx, u, lists)
	if err != nil {
		return e.degrade(u, err, false)
	}
	if member {
		return Decision{CanView: true}, nil
	}

	loggedInOnly := v.IsLoggedInOnly || c.IsLoggedInOnly
	unrestricted := len(lists) == 0 && len(c.AdminLists) == 0
	return Decision{CanView: loggedInOnly && unrestricted}, nil
}

// degrade turns an unreachable directory into a public-only answer.
func (e *Evaluator) degrade(u *user.User, err error, public bool) (Decision, error) {
	if !errors.Is(err, apperror.ErrDirectoryUnavailable) {
		return Decision{}, err
	}
	e.logger.Warn("Directory unavailable, restricting to public access", zap.String("user", u.Username), zap.Error(err))
	return Decision{CanView: public, Degraded: true}, nil
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, l := range append(append([]string{}, a...), b...) {
		if _, ok := seen[l]; ok || l == "" {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
