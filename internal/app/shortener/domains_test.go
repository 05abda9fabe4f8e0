package shortener

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainAuthority_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.domains.Register(ctx, "  Short.LY ")
	require.NoError(t, err)
	assert.Equal(t, "short.ly", d.Host)
	assert.True(t, d.IsActive)

	_, err = f.domains.Register(ctx, "short.ly")
	require.ErrorIs(t, err, ErrConflict)

	_, err = f.domains.Register(ctx, "   ")
	assert.Equal(t, ReasonDomainRequired, reasonOf(t, err))

	got, err := f.domains.Lookup(ctx, "SHORT.ly")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = f.domains.Lookup(ctx, "missing.io")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDomainAuthority_SetActive(t *testing.T) {
	f := newFixture(t, "short.ly")
	ctx := context.Background()
	d, err := f.domains.Lookup(ctx, "short.ly")
	require.NoError(t, err)

	got, err := f.domains.SetActive(ctx, d.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	got, err = f.domains.SetActive(ctx, d.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = f.domains.Deactivate(ctx, 4242)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDomainAuthority_DeleteCascades(t *testing.T) {
	f := newFixture(t, "short.ly", "keep.ly")
	reg := f.registry(t, nil)
	ctx := context.Background()
	for _, host := range []string{"short.ly", "short.ly", "keep.ly"} {
		_, err := reg.Create(ctx, Draft{Domain: host, DestinationURL: "https://example.com"})
		require.NoError(t, err)
	}
	d, err := f.domains.Lookup(ctx, "short.ly")
	require.NoError(t, err)

	n, err := f.domains.CountLinks(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := f.domains.Delete(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, f.inv.domains, "short.ly")

	ok, err = f.domains.Delete(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err = f.domains.CountLinks(ctx, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	links, err := reg.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "keep.ly", links[0].Domain)
}
