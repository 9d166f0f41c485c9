package events

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	events     map[uuid.UUID]*Event
	categories map[uuid.UUID]*Category
	peers      map[uuid.UUID][]Peer
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:     make(map[uuid.UUID]*Event),
		categories: make(map[uuid.UUID]*Category),
		peers:      make(map[uuid.UUID][]Peer),
	}
}

func (f *fakeRepo) addCategory(name string) uuid.UUID {
	id := uuid.New()
	f.categories[id] = &Category{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	return id
}

func (f *fakeRepo) connect(a, b uuid.UUID) {
	f.peers[a] = append(f.peers[a], Peer{ID: b})
	f.peers[b] = append(f.peers[b], Peer{ID: a})
}

func (f *fakeRepo) hide(viewer, peer uuid.UUID) {
	for i := range f.peers[viewer] {
		if f.peers[viewer][i].ID == peer {
			f.peers[viewer][i].HideEvents = true
		}
	}
}

func (f *fakeRepo) Create(_ context.Context, event *Event) (*Event, error) {
	stored := *event
	stored.ID = uuid.New()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	f.events[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Event, error) {
	event, ok := f.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *event
	return &out, nil
}

func (f *fakeRepo) Update(_ context.Context, event *Event) (*Event, error) {
	stored, ok := f.events[event.ID]
	if !ok {
		return nil, ErrNotFound
	}
	updated := *event
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	f.events[event.ID] = &updated
	out := updated
	return &out, nil
}

func (f *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.events[id]; !ok {
		return ErrNotFound
	}
	delete(f.events, id)
	return nil
}

func (f *fakeRepo) UnlinkCopies(_ context.Context, sourceID uuid.UUID) (int64, error) {
	var n int64
	for _, event := range f.events {
		if event.CopiedFrom != nil && *event.CopiedFrom == sourceID {
			event.CopiedFrom = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ListCopies(_ context.Context, sourceID uuid.UUID) ([]Event, error) {
	var out []Event
	for _, event := range f.events {
		if event.CopiedFrom != nil && *event.CopiedFrom == sourceID {
			out = append(out, *event)
		}
	}
	return out, nil
}

func (f *fakeRepo) HasCopy(_ context.Context, ownerID, sourceID uuid.UUID) (bool, error) {
	for _, event := range f.events {
		if event.CreatedBy == ownerID && event.CopiedFrom != nil && *event.CopiedFrom == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ListUpcomingByOwners(_ context.Context, ownerIDs []uuid.UUID, dayStart time.Time) ([]Event, error) {
	owners := make(map[uuid.UUID]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var out []Event
	for _, event := range f.events {
		if !owners[event.CreatedBy] {
			continue
		}
		if !event.Recurrence.IsRecurring &&
			event.Date.End.Before(dayStart) && event.Date.Start.Before(dayStart) {
			continue
		}
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Start.Before(out[j].Date.Start)
	})
	return out, nil
}

func (f *fakeRepo) ListLineage(_ context.Context, ownerID uuid.UUID) (Lineage, error) {
	var lineage Lineage
	for _, event := range f.events {
		if event.CreatedBy != ownerID {
			continue
		}
		lineage.OwnEventIDs = append(lineage.OwnEventIDs, event.ID)
		if event.CopiedFrom != nil {
			lineage.CopiedSourceIDs = append(lineage.CopiedSourceIDs, *event.CopiedFrom)
		}
	}
	return lineage, nil
}

func (f *fakeRepo) ListPast(_ context.Context, ownerID uuid.UUID, now time.Time, filters PastFilters) ([]Event, int, error) {
	var matched []Event
	for _, event := range f.events {
		if event.CreatedBy != ownerID || !event.Date.End.Before(now) {
			continue
		}
		if filters.CategoryID != nil && event.CategoryID != *filters.CategoryID {
			continue
		}
		if filters.Search != "" {
			needle := strings.ToLower(filters.Search)
			if !strings.Contains(strings.ToLower(event.Title), needle) &&
				!strings.Contains(strings.ToLower(event.Location.Venue), needle) &&
				!strings.Contains(strings.ToLower(event.Location.City), needle) {
				continue
			}
		}
		matched = append(matched, *event)
	}

	less := func(a, b Event) bool {
		switch filters.SortBy {
		case "date.start":
			return a.Date.Start.Before(b.Date.Start)
		case "title":
			return a.Title < b.Title
		case "createdAt":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.Date.End.Before(b.Date.End)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if filters.Order == "asc" {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})

	total := len(matched)
	start := (filters.Page - 1) * filters.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + filters.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (f *fakeRepo) ListConnectionPeers(_ context.Context, userID uuid.UUID) ([]Peer, error) {
	return append([]Peer(nil), f.peers[userID]...), nil
}

func (f *fakeRepo) ListCategories(_ context.Context, userID uuid.UUID) ([]Category, error) {
	var out []Category
	for _, c := range f.categories {
		if c.CreatedBy == nil || *c.CreatedBy == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) GetCategory(_ context.Context, id uuid.UUID) (*Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeRepo) CreateCategory(_ context.Context, category *Category) (*Category, error) {
	stored := *category
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now().UTC()
	f.categories[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	snapshot := f.clone()
	if err := fn(ctx, f); err != nil {
		f.events = snapshot.events
		f.categories = snapshot.categories
		f.peers = snapshot.peers
		return err
	}
	return nil
}

func (f *fakeRepo) clone() *fakeRepo {
	out := newFakeRepo()
	for id, event := range f.events {
		e := *event
		out.events[id] = &e
	}
	for id, c := range f.categories {
		cc := *c
		out.categories[id] = &cc
	}
	for id, peers := range f.peers {
		out.peers[id] = append([]Peer(nil), peers...)
	}
	return out
}
