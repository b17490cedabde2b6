package membership

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/domain/user"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var tracer = otel.Tracer("membership_usecase")

// Resolver answers list-membership questions through the directory, keeping
// a per-user positive and negative cache.
type Resolver struct {
	directory  service.Directory
	cache      service.MembershipCache
	homeDomain string
	logger     logger.Logger
}

func NewResolver(dir service.Directory, cache service.MembershipCache, homeDomain string, log logger.Logger) *Resolver {
	return &Resolver{directory: dir, cache: cache, homeDomain: homeDomain, logger: log}
}

func cacheKey(u *user.User) string {
	return strings.ToLower(u.Username)
}

func (r *Resolver) cached(ctx context.Context, u *user.User) (*service.UserMembership, bool) {
	m, ok, err := r.cache.Get(ctx, cacheKey(u))
	if err != nil {
		r.logger.Warn("Membership cache read failed", zap.String("user", u.Username), zap.Error(err))
		return nil, false
	}
	return m, ok
}

func (r *Resolver) store(ctx context.Context, u *user.User, m *service.UserMembership) {
	if err := r.cache.Set(ctx, cacheKey(u), m); err != nil {
		r.logger.Warn("Membership cache write failed", zap.String("user", u.Username), zap.Error(err))
	}
}

// UserLists returns the user's membership, asking the directory on a cache miss.
func (r *Resolver) UserLists(ctx context.Context, u *user.User) (*service.UserMembership, error) {
	if u.IsAnonymous() {
		return &service.UserMembership{}, nil
	}
	if m, ok := r.cached(ctx, u); ok {
		return m, nil
	}

	ctx, span := tracer.Start(ctx, "UserLists")
	defer span.End()

	id, kind := u.DirectoryIdentity(r.homeDomain)
	lists, err := r.directory.UserLists(ctx, id, kind)
	if err != nil && !errors.Is(err, service.ErrDirectoryNullResult) {
		span.RecordError(err)
		return nil, directoryError(err)
	}
	m := &service.UserMembership{MemberOf: dedupe(lists), NotMemberOf: []string{}}
	span.SetAttributes(attribute.Int("lists", len(m.MemberOf)))
	r.store(ctx, u, m)
	return m, nil
}

// HasCommonLists reports whether the user belongs to any of candidates. Lists
// the cache knows nothing about are checked one at a time, stopping at the
// first match.
func (r *Resolver) HasCommonLists(ctx context.Context, u *user.User, candidates []string) (bool, error) {
	candidates = dedupe(candidates)
	if u.IsAnonymous() || len(candidates) == 0 {
		return false, nil
	}
	m, err := r.UserLists(ctx, u)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if containsFold(m.MemberOf, c) {
			return true, nil
		}
	}

	id, _ := u.DirectoryIdentity(r.homeDomain)
	changed := false
	for _, list := range candidates {
		if containsFold(m.NotMemberOf, list) {
			continue
		}
		members, err := r.directory.ListMembers(ctx, list)
		if err != nil && !errors.Is(err, service.ErrDirectoryNullResult) {
			// what was learned so far is still valid
			if changed {
				r.store(ctx, u, m)
			}
			return false, directoryError(err)
		}
		changed = true
		if containsFold(members, id) || containsFold(members, u.Username) {
			m.MemberOf = append(m.MemberOf, list)
			r.store(ctx, u, m)
			return true, nil
		}
		m.NotMemberOf = append(m.NotMemberOf, list)
	}
	if changed {
		r.store(ctx, u, m)
	}
	return false, nil
}

// Invalidate drops the cached membership of u.
func (r *Resolver) Invalidate(ctx context.Context, u *user.User) error {
	return r.cache.Delete(ctx, cacheKey(u))
}

func directoryError(err error) error {
	if errors.Is(err, apperror.ErrDirectoryUnavailable) {
		return err
	}
	return apperror.NewDirectoryUnavailable("membership lookup failed", err)
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(x string) bool { return strings.EqualFold(x, s) })
}

func dedupe(lists []string) []string {
	out := make([]string, 0, len(lists))
	for _, l := range lists {
		l = strings.TrimSpace(l)
		if l != "" && !containsFold(out, l) {
			out = append(out, l)
		}
	}
	return out
}
