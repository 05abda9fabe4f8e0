package shortener

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// memStore is an in-memory LinkStore/DomainStore/VisitStore with the same
// constraint behaviour as the SQL adapters.
type memStore struct {
	mu      sync.Mutex
	links   map[int64]*Link
	domains map[int64]*Domain
	events  map[string]struct{}
	nextID  int64

	inserts atomic.Int64
	// insertErr, when set, is returned by InsertLink before any write.
	insertErr func(l *Link) error
}

func newMemStore() *memStore {
	return &memStore{
		links:   make(map[int64]*Link),
		domains: make(map[int64]*Domain),
		events:  make(map[string]struct{}),
	}
}

func (m *memStore) InsertLink(_ context.Context, l *Link) error {
	m.inserts.Add(1)
	if m.insertErr != nil {
		if err := m.insertErr(l); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	active := false
	for _, d := range m.domains {
		if d.Host == l.Domain && d.IsActive {
			active = true
		}
	}
	if !active {
		return ErrDomainUnavailable
	}
	for _, cur := range m.links {
		if cur.Domain == l.Domain && cur.Slug == l.Slug {
			return ErrUniqueViolation
		}
	}
	m.nextID++
	l.ID = m.nextID
	l.Version = 1
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *memStore) GetLink(_ context.Context, id int64) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) FindLink(_ context.Context, domain, slug string) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Domain == domain && l.Slug == slug {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) SlugExists(ctx context.Context, domain, slug string) (bool, error) {
	_, err := m.FindLink(ctx, domain, slug)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *memStore) ListLinks(_ context.Context, f ListFilter) ([]Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Link, 0, len(m.links))
	for _, l := range m.links {
		if f.Domain == "" || l.Domain == f.Domain {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateLink(_ context.Context, l *Link, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.links[l.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expected {
		return ErrConcurrencyConflict
	}
	l.Version = expected + 1
	l.ClickCount = cur.ClickCount
	l.LastAccessedAt = cur.LastAccessedAt
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *memStore) DeleteLink(_ context.Context, id int64) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.links, id)
	return l, nil
}

func (m *memStore) InsertDomain(_ context.Context, d *Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.domains {
		if cur.Host == d.Host {
			return ErrUniqueViolation
		}
	}
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.domains[d.ID] = &cp
	return nil
}

func (m *memStore) GetDomain(_ context.Context, id int64) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) FindDomain(_ context.Context, host string) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.domains {
		if d.Host == host {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListDomains(_ context.Context) ([]Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Domain, 0, len(m.domains))
	for _, d := range m.domains {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out, nil
}

func (m *memStore) SetDomainActive(_ context.Context, id int64, active bool) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.IsActive = active
	cp := *d
	return &cp, nil
}

func (m *memStore) DeleteDomain(_ context.Context, id int64) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[id]
	if !ok {
		return nil, ErrNotFound
	}
	for lid, l := range m.links {
		if l.Domain == d.Host {
			delete(m.links, lid)
		}
	}
	delete(m.domains, id)
	return d, nil
}

func (m *memStore) CountLinksByHost(_ context.Context, host string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.links {
		if l.Domain == host {
			n++
		}
	}
	return n, nil
}

func (m *memStore) RecordVisits(_ context.Context, visits []Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range visits {
		if v.EventID != "" {
			if _, dup := m.events[v.EventID]; dup {
				continue
			}
			m.events[v.EventID] = struct{}{}
		}
		l, ok := m.links[v.LinkID]
		if !ok {
			continue
		}
		l.ClickCount++
		at := v.At
		l.LastAccessedAt = &at
	}
	return nil
}

func (m *memStore) ListVisits(context.Context, int64, int, int64) ([]VisitRecord, error) {
	return nil, nil
}

// syncTracker records visits inline so tests can assert on counts.
type syncTracker struct {
	store *memStore
}

func (t syncTracker) Track(v Visit) {
	_ = t.store.RecordVisits(context.Background(), []Visit{v})
}

// fixedAllocator always returns the same slug and counts calls.
type fixedAllocator struct {
	slug  string
	calls atomic.Int64
}

func (a *fixedAllocator) Generate() (string, error) {
	a.calls.Add(1)
	return a.slug, nil
}

// denyAllFilter claims every slug might exist.
type denyAllFilter struct{ added int }

func (f *denyAllFilter) MightExist(string, string) bool { return true }
func (f *denyAllFilter) Add(string, string)             { f.added++ }

type recordingInvalidator struct {
	mu      sync.Mutex
	links   []string
	domains []string
}

func (r *recordingInvalidator) InvalidateLink(_ context.Context, domain, slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append(r.links, domain+"/"+slug)
}

func (r *recordingInvalidator) InvalidateDomain(_ context.Context, host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains = append(r.domains, host)
}
