package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/server/internal/api/middleware"
	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/config"
	"github.com/gatherly/server/internal/domain/events"
	"github.com/gatherly/server/internal/domain/users"
)

// testServer wires handlers over in-memory repositories, mirroring the
// production route table.
type testServer struct {
	http.Handler
	usersRepo  *fakeUsersRepo
	eventsRepo *fakeEventsRepo
	access     *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			AccessExpiry:  time.Minute,
			RefreshExpiry: time.Hour,
		},
		Environment: "test",
	}

	accessKey, err := auth.DeriveAccessJWTKey([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)
	refreshKey, err := auth.DeriveRefreshJWTKey([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)
	accessTokens := auth.NewJWTManager(accessKey, cfg.Auth.AccessExpiry, "gatherly-test")
	refreshTokens := auth.NewJWTManager(refreshKey, cfg.Auth.RefreshExpiry, "gatherly-test")

	usersRepo := newFakeUsersRepo()
	eventsRepo := newFakeEventsRepo()
	eventsRepo.linkUsers(usersRepo)
	usersService := users.NewService(usersRepo, zerolog.Nop())
	eventsService := events.NewService(eventsRepo, zerolog.Nop())

	authHandler := NewAuthHandler(usersService, accessTokens, refreshTokens, nil, cfg, zerolog.Nop())
	usersHandler := NewUsersHandler(usersService, accessTokens, zerolog.Nop())
	eventsHandler := NewEventsHandler(eventsService, zerolog.Nop())

	requireAuth := middleware.RequireAuth(accessTokens)
	protected := func(fn http.HandlerFunc) http.Handler { return requireAuth(fn) }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("GET /users", protected(usersHandler.Me))
	mux.Handle("GET /users/connection-id", protected(usersHandler.ConnectionID))
	mux.Handle("POST /users/connection-id", protected(usersHandler.ConnectionID))
	mux.Handle("GET /users/connections", protected(usersHandler.Connections))
	mux.Handle("POST /users/connections", protected(usersHandler.Connect))
	mux.Handle("DELETE /users/connections/{peerId}", protected(usersHandler.Disconnect))
	mux.Handle("PATCH /users/connections/{peerId}/preferences", protected(usersHandler.Preferences))
	mux.Handle("GET /events", protected(eventsHandler.Feed))
	mux.Handle("POST /events", protected(eventsHandler.Create))
	mux.Handle("GET /events/past", protected(eventsHandler.Past))
	mux.Handle("GET /events/categories", protected(eventsHandler.Categories))
	mux.Handle("POST /events/categories", protected(eventsHandler.CreateCategory))
	mux.Handle("GET /events/{eventId}", protected(eventsHandler.Get))
	mux.Handle("PUT /events/{eventId}", protected(eventsHandler.Update))
	mux.Handle("DELETE /events/{eventId}", protected(eventsHandler.Delete))
	mux.Handle("PATCH /events/{eventId}/privacy", protected(eventsHandler.TogglePrivacy))
	mux.Handle("POST /events/{eventId}/copy", protected(eventsHandler.Copy))
	mux.Handle("GET /events/{eventId}/linked", protected(eventsHandler.Linked))

	return &testServer{
		Handler:    mux,
		usersRepo:  usersRepo,
		eventsRepo: eventsRepo,
		access:     accessTokens,
	}
}

// tokenFor mints an access token for a user that exists in the fake repo.
func (s *testServer) tokenFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := s.access.Generate(userID.String(), users.RoleUser)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// fakeUsersRepo is an in-memory users.Repository.
type fakeUsersRepo struct {
	users map[uuid.UUID]*users.User
	edges map[uuid.UUID]map[uuid.UUID]*users.Connection
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		users: make(map[uuid.UUID]*users.User),
		edges: make(map[uuid.UUID]map[uuid.UUID]*users.Connection),
	}
}

func (f *fakeUsersRepo) Create(_ context.Context, params users.CreateParams) (*users.User, error) {
	for _, u := range f.users {
		if u.Email == params.Email {
			return nil, users.ErrEmailTaken
		}
	}
	user := &users.User{
		ID:           uuid.New(),
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		Role:         users.RoleUser,
		Provider:     params.Provider,
		GoogleID:     params.GoogleID,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.users[user.ID] = user
	out := *user
	return &out, nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, users.ErrNotFound
}

func (f *fakeUsersRepo) GetByGoogleID(_ context.Context, googleID string) (*users.User, error) {
	for _, u := range f.users {
		if u.GoogleID == googleID && googleID != "" {
			out := *u
			return &out, nil
		}
	}
	return nil, users.ErrNotFound
}

func (f *fakeUsersRepo) SetConnectionCode(_ context.Context, userID uuid.UUID, code users.ConnectionCode) error {
	now := time.Now().UTC()
	for id, u := range f.users {
		if id != userID && u.Code != nil && u.Code.Code == code.Code && u.Code.ExpiresAt.After(now) {
			return users.ErrCodeTaken
		}
	}
	user, ok := f.users[userID]
	if !ok {
		return users.ErrNotFound
	}
	c := code
	user.Code = &c
	return nil
}

func (f *fakeUsersRepo) CodeInUse(_ context.Context, code string, now time.Time) (bool, error) {
	for _, u := range f.users {
		if u.Code != nil && u.Code.Code == code && u.Code.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsersRepo) ClaimConnectionCode(_ context.Context, code string, now time.Time) (*users.PeerSummary, error) {
	for _, u := range f.users {
		if u.Code != nil && u.Code.Code == code && u.Code.ExpiresAt.After(now) {
			u.Code = nil
			return &users.PeerSummary{ID: u.ID, Name: u.Name, Email: u.Email}, nil
		}
	}
	return nil, users.ErrCodeNotFound
}

func (f *fakeUsersRepo) HasConnection(_ context.Context, userID, peerID uuid.UUID) (bool, error) {
	_, ok := f.edges[userID][peerID]
	return ok, nil
}

func (f *fakeUsersRepo) AddConnection(_ context.Context, userID, peerID uuid.UUID) error {
	if _, ok := f.edges[userID][peerID]; ok {
		return users.ErrAlreadyConnected
	}
	if f.edges[userID] == nil {
		f.edges[userID] = make(map[uuid.UUID]*users.Connection)
	}
	f.edges[userID][peerID] = &users.Connection{PeerID: peerID, CreatedAt: time.Now().UTC()}
	return nil
}

func (f *fakeUsersRepo) RemoveConnection(_ context.Context, userID, peerID uuid.UUID) (bool, error) {
	if _, ok := f.edges[userID][peerID]; !ok {
		return false, nil
	}
	delete(f.edges[userID], peerID)
	return true, nil
}

func (f *fakeUsersRepo) SetHideEvents(_ context.Context, userID, peerID uuid.UUID, hide bool) (bool, error) {
	edge, ok := f.edges[userID][peerID]
	if !ok {
		return false, nil
	}
	edge.HideEvents = hide
	return true, nil
}

func (f *fakeUsersRepo) ListConnections(_ context.Context, userID uuid.UUID) ([]users.Connection, error) {
	var out []users.Connection
	for peerID, edge := range f.edges[userID] {
		conn := *edge
		if peer, ok := f.users[peerID]; ok {
			conn.PeerName = peer.Name
		}
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeUsersRepo) WithTx(ctx context.Context, fn func(context.Context, users.Repository) error) error {
	snapshot := f.clone()
	if err := fn(ctx, f); err != nil {
		f.users = snapshot.users
		f.edges = snapshot.edges
		return err
	}
	return nil
}

func (f *fakeUsersRepo) clone() *fakeUsersRepo {
	out := newFakeUsersRepo()
	for id, u := range f.users {
		uu := *u
		if u.Code != nil {
			code := *u.Code
			uu.Code = &code
		}
		out.users[id] = &uu
	}
	for id, peers := range f.edges {
		out.edges[id] = make(map[uuid.UUID]*users.Connection, len(peers))
		for peerID, edge := range peers {
			e := *edge
			out.edges[id][peerID] = &e
		}
	}
	return out
}

// fakeEventsRepo is an in-memory events.Repository. Connection peers are
// derived from the users fake when linked via linkRepos.
type fakeEventsRepo struct {
	events     map[uuid.UUID]*events.Event
	categories map[uuid.UUID]*events.Category
	usersRepo  *fakeUsersRepo
}

func newFakeEventsRepo() *fakeEventsRepo {
	return &fakeEventsRepo{
		events:     make(map[uuid.UUID]*events.Event),
		categories: make(map[uuid.UUID]*events.Category),
	}
}

func (f *fakeEventsRepo) linkUsers(usersRepo *fakeUsersRepo) {
	f.usersRepo = usersRepo
}

func (f *fakeEventsRepo) addCategory(name string) uuid.UUID {
	id := uuid.New()
	f.categories[id] = &events.Category{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	return id
}

func (f *fakeEventsRepo) Create(_ context.Context, event *events.Event) (*events.Event, error) {
	stored := *event
	stored.ID = uuid.New()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	f.events[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeEventsRepo) GetByID(_ context.Context, id uuid.UUID) (*events.Event, error) {
	event, ok := f.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	out := *event
	return &out, nil
}

func (f *fakeEventsRepo) Update(_ context.Context, event *events.Event) (*events.Event, error) {
	if _, ok := f.events[event.ID]; !ok {
		return nil, events.ErrNotFound
	}
	updated := *event
	updated.UpdatedAt = time.Now().UTC()
	f.events[event.ID] = &updated
	out := updated
	return &out, nil
}

func (f *fakeEventsRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.events[id]; !ok {
		return events.ErrNotFound
	}
	delete(f.events, id)
	return nil
}

func (f *fakeEventsRepo) UnlinkCopies(_ context.Context, sourceID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range f.events {
		if e.CopiedFrom != nil && *e.CopiedFrom == sourceID {
			e.CopiedFrom = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeEventsRepo) ListCopies(_ context.Context, sourceID uuid.UUID) ([]events.Event, error) {
	var out []events.Event
	for _, e := range f.events {
		if e.CopiedFrom != nil && *e.CopiedFrom == sourceID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEventsRepo) HasCopy(_ context.Context, ownerID, sourceID uuid.UUID) (bool, error) {
	for _, e := range f.events {
		if e.CreatedBy == ownerID && e.CopiedFrom != nil && *e.CopiedFrom == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventsRepo) ListUpcomingByOwners(_ context.Context, ownerIDs []uuid.UUID, dayStart time.Time) ([]events.Event, error) {
	owners := make(map[uuid.UUID]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var out []events.Event
	for _, e := range f.events {
		if !owners[e.CreatedBy] {
			continue
		}
		if !e.Recurrence.IsRecurring && e.Date.End.Before(dayStart) && e.Date.Start.Before(dayStart) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Start.Before(out[j].Date.Start) })
	return out, nil
}

func (f *fakeEventsRepo) ListLineage(_ context.Context, ownerID uuid.UUID) (events.Lineage, error) {
	var lineage events.Lineage
	for _, e := range f.events {
		if e.CreatedBy != ownerID {
			continue
		}
		lineage.OwnEventIDs = append(lineage.OwnEventIDs, e.ID)
		if e.CopiedFrom != nil {
			lineage.CopiedSourceIDs = append(lineage.CopiedSourceIDs, *e.CopiedFrom)
		}
	}
	return lineage, nil
}

func (f *fakeEventsRepo) ListPast(_ context.Context, ownerID uuid.UUID, now time.Time, filters events.PastFilters) ([]events.Event, int, error) {
	var matched []events.Event
	for _, e := range f.events {
		if e.CreatedBy != ownerID || !e.Date.End.Before(now) {
			continue
		}
		if filters.CategoryID != nil && e.CategoryID != *filters.CategoryID {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filters.Search)) {
			continue
		}
		matched = append(matched, *e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if filters.Order == "asc" {
			return matched[i].Date.End.Before(matched[j].Date.End)
		}
		return matched[j].Date.End.Before(matched[i].Date.End)
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

func (f *fakeEventsRepo) ListConnectionPeers(_ context.Context, userID uuid.UUID) ([]events.Peer, error) {
	if f.usersRepo == nil {
		return nil, nil
	}
	var out []events.Peer
	for peerID, edge := range f.usersRepo.edges[userID] {
		out = append(out, events.Peer{ID: peerID, HideEvents: edge.HideEvents})
	}
	return out, nil
}

func (f *fakeEventsRepo) ListCategories(_ context.Context, userID uuid.UUID) ([]events.Category, error) {
	var out []events.Category
	for _, c := range f.categories {
		if c.CreatedBy == nil || *c.CreatedBy == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeEventsRepo) GetCategory(_ context.Context, id uuid.UUID) (*events.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, events.ErrCategoryNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeEventsRepo) CreateCategory(_ context.Context, category *events.Category) (*events.Category, error) {
	stored := *category
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now().UTC()
	f.categories[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeEventsRepo) WithTx(ctx context.Context, fn func(context.Context, events.Repository) error) error {
	return fn(ctx, f)
}
