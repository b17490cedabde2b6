package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/lecture-video/internal/application/service"
)

func TestMemoryMembershipCache_ExpiresEntries(t *testing.T) {
	c := NewMemoryMembershipCache(time.Minute).(*memoryMembershipCache)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alice", &service.UserMembership{MemberOf: []string{"x"}}))

	m, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, m.MemberOf)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryMembershipCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryMembershipCache(time.Hour)
	ctx := context.Background()
	in := &service.UserMembership{MemberOf: []string{"x"}}
	require.NoError(t, c.Set(ctx, "bob", in))
	in.MemberOf[0] = "mutated"

	m, ok, _ := c.Get(ctx, "bob")
	require.True(t, ok)
	m.MemberOf[0] = "also-mutated"

	again, _, _ := c.Get(ctx, "bob")
	assert.Equal(t, []string{"x"}, again.MemberOf)

	require.NoError(t, c.Delete(ctx, "bob"))
	_, ok, _ = c.Get(ctx, "bob")
	assert.False(t, ok)
}
