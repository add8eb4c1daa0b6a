package service

import (
	"context"
	"errors"
	"testing"

	"github.com/inkwell/internal/slug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySlugs is a SlugLookup backed by a slug -> owner id map.
type memorySlugs struct {
	owners map[string]uint
	calls  int
}

func newMemorySlugs(taken ...string) *memorySlugs {
	m := &memorySlugs{owners: make(map[string]uint)}
	for i, s := range taken {
		m.owners[s] = uint(i + 100)
	}
	return m
}

func (m *memorySlugs) lookup(_ context.Context, candidate string, excludeID uint) (bool, error) {
	m.calls++
	owner, ok := m.owners[candidate]
	return ok && owner != excludeID, nil
}

func TestResolveUniqueSlugFreeBase(t *testing.T) {
	slugs := newMemorySlugs()
	res, err := ResolveUniqueSlug(context.Background(), "test-post", 0, slugs.lookup)
	require.NoError(t, err)
	assert.Equal(t, "test-post", res.Slug)
	assert.Equal(t, 0, res.Collisions)
}

func TestResolveUniqueSlugSecondCollisionTerminates(t *testing.T) {
	slugs := newMemorySlugs("test-post", "test-post-1")
	res, err := ResolveUniqueSlug(context.Background(), "test-post", 0, slugs.lookup)
	require.NoError(t, err)
	assert.Equal(t, "test-post-2", res.Slug)
	assert.Equal(t, 2, res.Collisions)
	assert.Equal(t, 3, slugs.calls)
}

func TestResolveUniqueSlugDistinctForCollidingTitles(t *testing.T) {
	slugs := newMemorySlugs()
	titles := []string{"Hello World", "hello, world!", "HELLO   WORLD", "Hello-World"}

	seen := make(map[string]bool)
	for i, title := range titles {
		res, err := ResolveUniqueSlug(context.Background(), slug.Make(title), 0, slugs.lookup)
		require.NoError(t, err)
		require.False(t, seen[res.Slug], "slug %q assigned twice", res.Slug)
		seen[res.Slug] = true
		slugs.owners[res.Slug] = uint(i + 1)
	}
	assert.Len(t, seen, len(titles))
	assert.True(t, seen["hello-world-3"])
}

func TestResolveUniqueSlugExcludesOwnRecord(t *testing.T) {
	slugs := newMemorySlugs("my-post")
	owner := slugs.owners["my-post"]

	res, err := ResolveUniqueSlug(context.Background(), "my-post", owner, slugs.lookup)
	require.NoError(t, err)
	assert.Equal(t, "my-post", res.Slug)
}

func TestResolveUniqueSlugFailsClosed(t *testing.T) {
	alwaysTaken := func(context.Context, string, uint) (bool, error) { return true, nil }

	_, err := ResolveUniqueSlug(context.Background(), "busy", 0, alwaysTaken)
	require.ErrorIs(t, err, ErrSlugExhausted)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestResolveUniqueSlugPropagatesLookupErrors(t *testing.T) {
	boom := errors.New("storage down")
	failing := func(context.Context, string, uint) (bool, error) { return false, boom }

	_, err := ResolveUniqueSlug(context.Background(), "x", 0, failing)
	assert.ErrorIs(t, err, boom)
}

func TestResolveUniqueSlugHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slugs := newMemorySlugs()

	_, err := ResolveUniqueSlug(ctx, "x", 0, slugs.lookup)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, slugs.calls)
}

func TestResolveUniqueSlugEmptyBase(t *testing.T) {
	slugs := newMemorySlugs()
	res, err := ResolveUniqueSlug(context.Background(), "", 0, slugs.lookup)
	require.NoError(t, err)
	assert.Equal(t, slug.Fallback, res.Slug)
}
