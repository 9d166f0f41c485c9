package users

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository for unit tests. WithTx snapshots the
// state up front and restores it when fn fails, mimicking a rollback.
type fakeRepo struct {
	users map[uuid.UUID]*User
	edges map[uuid.UUID]map[uuid.UUID]*Connection
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users: make(map[uuid.UUID]*User),
		edges: make(map[uuid.UUID]map[uuid.UUID]*Connection),
	}
}

func (f *fakeRepo) addUser(name, email string) *User {
	u := &User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Role:      RoleUser,
		Provider:  ProviderLocal,
		CreatedAt: time.Now().UTC(),
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeRepo) Create(_ context.Context, params CreateParams) (*User, error) {
	for _, u := range f.users {
		if u.Email == params.Email {
			return nil, ErrEmailTaken
		}
	}
	u := &User{
		ID:           uuid.New(),
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		Role:         RoleUser,
		Provider:     params.Provider,
		GoogleID:     params.GoogleID,
		CreatedAt:    time.Now().UTC(),
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	copied.Connections = nil
	for _, c := range f.edges[id] {
		copied.Connections = append(copied.Connections, *c)
	}
	return &copied, nil
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetByGoogleID(_ context.Context, googleID string) (*User, error) {
	for _, u := range f.users {
		if u.GoogleID != "" && u.GoogleID == googleID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) SetConnectionCode(_ context.Context, userID uuid.UUID, code ConnectionCode) error {
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Code = &code
	return nil
}

func (f *fakeRepo) CodeInUse(_ context.Context, code string, now time.Time) (bool, error) {
	for _, u := range f.users {
		if u.Code != nil && u.Code.Code == code && u.Code.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ClaimConnectionCode(_ context.Context, code string, now time.Time) (*PeerSummary, error) {
	for _, u := range f.users {
		if u.Code != nil && u.Code.Code == code && u.Code.ExpiresAt.After(now) {
			u.Code = nil
			return &PeerSummary{ID: u.ID, Name: u.Name, Email: u.Email}, nil
		}
	}
	return nil, ErrCodeNotFound
}

func (f *fakeRepo) HasConnection(_ context.Context, userID, peerID uuid.UUID) (bool, error) {
	_, ok := f.edges[userID][peerID]
	return ok, nil
}

func (f *fakeRepo) AddConnection(_ context.Context, userID, peerID uuid.UUID) error {
	if f.edges[userID] == nil {
		f.edges[userID] = make(map[uuid.UUID]*Connection)
	}
	peerName := ""
	if peer, ok := f.users[peerID]; ok {
		peerName = peer.Name
	}
	f.edges[userID][peerID] = &Connection{
		PeerID:    peerID,
		PeerName:  peerName,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (f *fakeRepo) RemoveConnection(_ context.Context, userID, peerID uuid.UUID) (bool, error) {
	if _, ok := f.edges[userID][peerID]; !ok {
		return false, nil
	}
	delete(f.edges[userID], peerID)
	return true, nil
}

func (f *fakeRepo) SetHideEvents(_ context.Context, userID, peerID uuid.UUID, hide bool) (bool, error) {
	conn, ok := f.edges[userID][peerID]
	if !ok {
		return false, nil
	}
	conn.HideEvents = hide
	return true, nil
}

func (f *fakeRepo) ListConnections(_ context.Context, userID uuid.UUID) ([]Connection, error) {
	var out []Connection
	for _, c := range f.edges[userID] {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	snapshot := f.clone()
	if err := fn(ctx, f); err != nil {
		f.users = snapshot.users
		f.edges = snapshot.edges
		return err
	}
	return nil
}

func (f *fakeRepo) clone() *fakeRepo {
	out := newFakeRepo()
	for id, u := range f.users {
		copied := *u
		if u.Code != nil {
			code := *u.Code
			copied.Code = &code
		}
		out.users[id] = &copied
	}
	for id, peers := range f.edges {
		out.edges[id] = make(map[uuid.UUID]*Connection, len(peers))
		for pid, c := range peers {
			copied := *c
			out.edges[id][pid] = &copied
		}
	}
	return out
}
