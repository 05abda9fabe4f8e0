package shortener

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *memStore
	domains *DomainAuthority
	inv     *recordingInvalidator
}

func newFixture(t *testing.T, hosts ...string) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), inv: &recordingInvalidator{}}
	f.domains = NewDomainAuthority(f.store, WithDomainInvalidator(f.inv))
	for _, h := range hosts {
		_, err := f.domains.Register(context.Background(), h)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) registry(t *testing.T, alloc Allocator, opts ...RegistryOption) *Registry {
	t.Helper()
	if alloc == nil {
		a, err := NewSlugAllocator(DefaultSlugLength)
		require.NoError(t, err)
		alloc = a
	}
	opts = append([]RegistryOption{WithInvalidator(f.inv)}, opts...)
	return NewRegistry(f.store, f.domains, alloc, opts...)
}

func TestCreate_GeneratedSlugDefaults(t *testing.T) {
	f := newFixture(t, "short.ly")
	reg := f.registry(t, nil)

	l, err := reg.Create(context.Background(), Draft{Domain: "short.ly", DestinationURL: "https://example.com/page"})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-z]{6}$`), l.Slug)
	assert.Equal(t, RedirectPermanent, l.RedirectType)
	assert.True(t, l.IsActive)
	assert.Equal(t, int64(1), l.Version)
	assert.Zero(t, l.ClickCount)
	assert.Contains(t, f.inv.links, "short.ly/"+l.Slug)
}

func TestCreate_ConcurrentGeneratedSlugsAreUnique(t *testing.T) {
	f := newFixture(t, "short.ly")
	reg := f.registry(t, nil)

	const n = 64
	var wg sync.WaitGroup
	slugs := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := reg.Create(context.Background(), Draft{Domain: "short.ly", DestinationURL: fmt.Sprintf("https://example.com/%d", i)})
			errs[i] = err
			if err == nil {
				slugs[i] = l.Slug
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		_, dup := seen[slugs[i]]
		require.False(t, dup, "duplicate slug %s", slugs[i])
		seen[slugs[i]] = struct{}{}
	}
}

func TestCreate_SameSlugOnDifferentDomains(t *testing.T) {
	f := newFixture(t, "a.io", "b.io")
	reg := f.registry(t, nil)
	ctx := context.Background()

	la, err := reg.Create(ctx, Draft{Domain: "a.io", Slug: "promo", DestinationURL: "https://a.example"})
	require.NoError(t, err)
	lb, err := reg.Create(ctx, Draft{Domain: "b.io", Slug: "promo", DestinationURL: "https://b.example"})
	require.NoError(t, err)
	assert.NotEqual(t, la.ID, lb.ID)

	got, err := reg.GetBySlug(ctx, "A.IO", "promo")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", got.DestinationURL)
}

func TestCreate_CustomSlugTakenNeverCallsAllocator(t *testing.T) {
	f := newFixture(t, "short.ly")
	alloc := &fixedAllocator{slug: "unused"}
	reg := f.registry(t, alloc)
	ctx := context.Background()

	_, err := reg.Create(ctx, Draft{Domain: "short.ly", Slug: "promo", DestinationURL: "https://example.com/1"})
	require.NoError(t, err)

	_, err = reg.Create(ctx, Draft{Domain: "short.ly", Slug: "promo", DestinationURL: "https://example.com/2"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Zero(t, alloc.calls.Load())
}

func TestCreate_CustomSlugLostRaceIsConflict(t *testing.T) {
	f := newFixture(t, "short.ly")
	alloc := &fixedAllocator{slug: "unused"}
	reg := f.registry(t, alloc)
	f.store.insertErr = func(*Link) error { return ErrUniqueViolation }

	_, err := reg.Create(context.Background(), Draft{Domain: "short.ly", Slug: "promo", DestinationURL: "https://example.com"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(1), f.store.inserts.Load())
	assert.Zero(t, alloc.calls.Load())
}

func TestCreate_ExhaustsAfterExactlyMaxRetries(t *testing.T) {
	f := newFixture(t, "short.ly")
	ctx := context.Background()
	seed := f.registry(t, nil)
	_, err := seed.Create(ctx, Draft{Domain: "short.ly", Slug: "taken1", DestinationURL: "https://example.com"})
	require.NoError(t, err)

	for _, max := range []int{1, 3, 5} {
		alloc := &fixedAllocator{slug: "taken1"}
		reg := f.registry(t, alloc, WithMaxRetries(max))
		before := f.store.inserts.Load()

		_, err := reg.Create(ctx, Draft{Domain: "short.ly", DestinationURL: "https://example.com/x"})
		require.ErrorIs(t, err, ErrAllocationExhausted)
		assert.Equal(t, int64(max), alloc.calls.Load())
		assert.Equal(t, int64(max), f.store.inserts.Load()-before)
	}
}

func TestCreate_FilterScreenedDrawsCountAsAttempts(t *testing.T) {
	f := newFixture(t, "short.ly")
	alloc := &fixedAllocator{slug: "fresh1"}
	filter := &denyAllFilter{}
	reg := f.registry(t, alloc, WithMaxRetries(4), WithSlugFilter(filter))

	_, err := reg.Create(context.Background(), Draft{Domain: "short.ly", DestinationURL: "https://example.com"})
	require.ErrorIs(t, err, ErrAllocationExhausted)
	assert.Equal(t, int64(4), alloc.calls.Load())
	assert.Zero(t, f.store.inserts.Load())
	assert.Zero(t, filter.added)
}

func TestCreate_NonUniqueStoreErrorStopsRetrying(t *testing.T) {
	f := newFixture(t, "short.ly")
	alloc := &fixedAllocator{slug: "abc123"}
	reg := f.registry(t, alloc)
	boom := errors.New("disk full")
	f.store.insertErr = func(*Link) error { return boom }

	_, err := reg.Create(context.Background(), Draft{Domain: "short.ly", DestinationURL: "https://example.com"})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAllocationExhausted)
	assert.Equal(t, int64(1), alloc.calls.Load())
}

func TestCreate_RetriesPastCollision(t *testing.T) {
	f := newFixture(t, "short.ly")
	reg := f.registry(t, nil)
	var calls int
	f.store.insertErr = func(*Link) error {
		calls++
		if calls < 3 {
			return ErrUniqueViolation
		}
		return nil
	}

	l, err := reg.Create(context.Background(), Draft{Domain: "short.ly", DestinationURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.NotEmpty(t, l.Slug)
}

// changingDomains runs change once, right after the first domain read, the
// way a concurrent admin request would land between lookup and insert.
type changingDomains struct {
	*memStore
	change func(d *Domain)
	once   sync.Once
}

func (s *changingDomains) FindDomain(ctx context.Context, host string) (*Domain, error) {
	d, err := s.memStore.FindDomain(ctx, host)
	if err == nil {
		s.once.Do(func() { s.change(d) })
	}
	return d, err
}

func TestCreate_DomainChangedBeforeInsert(t *testing.T) {
	cases := []struct {
		name   string
		change func(m *memStore, d *Domain)
		reason Reason
	}{
		{
			name:   "deleted",
			change: func(m *memStore, d *Domain) { _, _ = m.DeleteDomain(context.Background(), d.ID) },
			reason: ReasonDomainUnauthorized,
		},
		{
			name:   "deactivated",
			change: func(m *memStore, d *Domain) { _, _ = m.SetDomainActive(context.Background(), d.ID, false) },
			reason: ReasonDomainInactive,
		},
	}
	for _, tc := range cases {
		for _, slug := range []string{"", "custom"} {
			t.Run(tc.name+"/"+slug, func(t *testing.T) {
				ctx := context.Background()
				store := newMemStore()
				_, err := NewDomainAuthority(store).Register(ctx, "short.ly")
				require.NoError(t, err)

				racing := &changingDomains{memStore: store}
				racing.change = func(d *Domain) { tc.change(store, d) }
				alloc := &fixedAllocator{slug: "gen123"}
				reg := NewRegistry(store, NewDomainAuthority(racing), alloc)

				_, err = reg.Create(ctx, Draft{Domain: "short.ly", Slug: slug, DestinationURL: "https://example.com"})
				ve, ok := IsValidation(err)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, tc.reason, ve.Reason)
				assert.NotErrorIs(t, err, ErrAllocationExhausted)

				n, err := store.CountLinksByHost(ctx, "short.ly")
				require.NoError(t, err)
				assert.Zero(t, n)
			})
		}
	}
}

func TestCreate_DomainGating(t *testing.T) {
	f := newFixture(t, "short.ly", "old.ly")
	ctx := context.Background()
	old, err := f.domains.Lookup(ctx, "old.ly")
	require.NoError(t, err)
	_, err = f.domains.Deactivate(ctx, old.ID)
	require.NoError(t, err)
	reg := f.registry(t, nil)

	cases := []struct {
		domain string
		reason Reason
	}{
		{"", ReasonDomainRequired},
		{"   ", ReasonDomainRequired},
		{"nope.io", ReasonDomainUnauthorized},
		{"old.ly", ReasonDomainInactive},
	}
	for _, tc := range cases {
		_, err := reg.Create(ctx, Draft{Domain: tc.domain, DestinationURL: "https://example.com"})
		assert.Equal(t, tc.reason, reasonOf(t, err), tc.domain)
	}

	l, err := reg.Create(ctx, Draft{Domain: " SHORT.LY ", DestinationURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "short.ly", l.Domain)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, "short.ly")
	reg := f.registry(t, nil)
	ctx := context.Background()
	long := func(n int) *string {
		s := make([]byte, n)
		for i := range s {
			s[i] = 'x'
		}
		v := string(s)
		return &v
	}

	cases := []struct {
		name   string
		draft  Draft
		reason Reason
	}{
		{"javascript", Draft{DestinationURL: "JavaScript:alert(1)"}, ReasonSchemeNotAllowed},
		{"relative", Draft{DestinationURL: "example.com"}, ReasonInvalidURL},
		{"bad slug", Draft{DestinationURL: "https://e.com", Slug: "a b"}, ReasonInvalidSlug},
		{"redirect", Draft{DestinationURL: "https://e.com", RedirectType: 307}, ReasonInvalidRedirectType},
		{"title", Draft{DestinationURL: "https://e.com", Title: long(MaxTitleLen + 1)}, ReasonFieldTooLong},
		{"notes", Draft{DestinationURL: "https://e.com", Notes: long(MaxNotesLen + 1)}, ReasonFieldTooLong},
	}
	for _, tc := range cases {
		tc.draft.Domain = "short.ly"
		_, err := reg.Create(ctx, tc.draft)
		assert.Equal(t, tc.reason, reasonOf(t, err), tc.name)
	}
	assert.Zero(t, f.store.inserts.Load())
}

func TestCreate_HonorsExplicitInactive(t *testing.T) {
	f := newFixture(t, "short.ly")
	reg := f.registry(t, nil)
	off := false

	l, err := reg.Create(context.Background(), Draft{Domain: "short.ly", DestinationURL: "https://example.com", IsActive: &off})
	require.NoError(t, err)
	assert.False(t, l.IsActive)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, "short.ly")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reg := f.registry(t, nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	l, err := reg.Create(ctx, Draft{Domain: "short.ly", Slug: "promo", DestinationURL: "https://example.com"})
	require.NoError(t, err)

	dest := "https://example.org/new"
	temp := RedirectTemporary
	exp := now.Add(time.Hour)
	got, err := reg.Update(ctx, l.ID, Patch{DestinationURL: &dest, RedirectType: &temp, ExpiresAt: &exp, ExpectedVersion: l.Version})
	require.NoError(t, err)
	assert.Equal(t, dest, got.DestinationURL)
	assert.Equal(t, RedirectTemporary, got.RedirectType)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "promo", got.Slug)
	require.NotNil(t, got.ExpiresAt)

	got, err = reg.Update(ctx, l.ID, Patch{ClearExpiry: true})
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, int64(3), got.Version)

	_, err = reg.Update(ctx, l.ID, Patch{DestinationURL: &dest, ExpectedVersion: 1})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	bad := "vbscript:x"
	_, err = reg.Update(ctx, l.ID, Patch{DestinationURL: &bad})
	assert.Equal(t, ReasonSchemeNotAllowed, reasonOf(t, err))

	_, err = reg.Update(ctx, 9999, Patch{DestinationURL: &dest})
	require.ErrorIs(t, err, ErrNotFound)
}

// racingStore lets another writer bump the version right after each read.
type racingStore struct {
	*memStore
}

func (s racingStore) GetLink(ctx context.Context, id int64) (*Link, error) {
	l, err := s.memStore.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	other := *l
	other.DestinationURL = "https://other.example"
	if err := s.memStore.UpdateLink(ctx, &other, l.Version); err != nil {
		return nil, err
	}
	return l, nil
}

func TestUpdate_LosesRaceToConcurrentWriter(t *testing.T) {
	f := newFixture(t, "short.ly")
	ctx := context.Background()
	l, err := f.registry(t, nil).Create(ctx, Draft{Domain: "short.ly", DestinationURL: "https://example.com"})
	require.NoError(t, err)

	reg := NewRegistry(racingStore{f.store}, f.domains, &fixedAllocator{slug: "x"})
	dest := "https://mine.example"
	_, err = reg.Update(ctx, l.ID, Patch{DestinationURL: &dest})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	got, err := f.store.GetLink(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example", got.DestinationURL)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, "short.ly")
	reg := f.registry(t, nil)
	ctx := context.Background()

	l, err := reg.Create(ctx, Draft{Domain: "short.ly", Slug: "gone", DestinationURL: "https://example.com"})
	require.NoError(t, err)

	ok, err := reg.Delete(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Delete(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reg.GetByID(ctx, l.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList_ClampsLimit(t *testing.T) {
	f := newFixture(t, "short.ly")
	reg := f.registry(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := reg.Create(ctx, Draft{Domain: "short.ly", DestinationURL: "https://example.com"})
		require.NoError(t, err)
	}

	links, err := reg.List(ctx, ListFilter{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, links, 3)
	assert.Greater(t, links[0].ID, links[2].ID)

	links, err = reg.List(ctx, ListFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, links, 1)
}
