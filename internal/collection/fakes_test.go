package collection

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/photosync/journal/internal/localstore"
	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/session"
)

// fakeGateway serves pages from an in-memory dataset ordered newest first.
// When hold is set, List announces itself on started and blocks until hold
// is closed.
type fakeGateway struct {
	mu        sync.Mutex
	photos    []models.Photo
	calls     []models.ListQuery
	listErr   error
	createErr error
	deleteErr error
	deleted   []string
	days      []models.DayCount
	// pageOverride forces the page number reported in responses
	pageOverride int

	hold    chan struct{}
	started chan models.ListQuery
}

func newFakeGateway(photos ...models.Photo) *fakeGateway {
	return &fakeGateway{photos: photos, started: make(chan models.ListQuery, 16)}
}

func (g *fakeGateway) List(ctx context.Context, q models.ListQuery) (*models.PhotoPage, error) {
	g.mu.Lock()
	g.calls = append(g.calls, q)
	hold := g.hold
	g.mu.Unlock()

	select {
	case g.started <- q:
	default:
	}
	if hold != nil {
		<-hold
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	total := len(g.photos)
	pages := (total + q.Limit - 1) / q.Limit
	if pages < 1 {
		pages = 1
	}
	start := (q.Page - 1) * q.Limit
	end := start + q.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	items := append([]models.Photo(nil), g.photos[start:end]...)
	page := q.Page
	if g.pageOverride > 0 {
		page = g.pageOverride
	}
	return &models.PhotoPage{Items: items, Page: page, Limit: q.Limit, Total: total, Pages: pages}, nil
}

func (g *fakeGateway) Create(ctx context.Context, form *models.PhotoForm) (*models.Photo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	p := models.Photo{
		ID:          "created-" + form.Filename,
		DownloadURL: "/uploads/" + form.Filename,
		CapturedAt:  form.CapturedAt,
	}
	g.photos = append([]models.Photo{p}, g.photos...)
	return &p, nil
}

func (g *fakeGateway) Delete(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted = append(g.deleted, id)
	return nil
}

func (g *fakeGateway) DaysWithPhotos(ctx context.Context) ([]models.DayCount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.days, nil
}

func (g *fakeGateway) block() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = make(chan struct{})
}

// detach leaves calls already blocked on the current hold waiting and lets
// later calls through. Closing the returned channel releases the waiters.
func (g *fakeGateway) detach() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.hold
	g.hold = nil
	return h
}

func (g *fakeGateway) drain() {
	for {
		select {
		case <-g.started:
		default:
			return
		}
	}
}

func (g *fakeGateway) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hold != nil {
		close(g.hold)
		g.hold = nil
	}
}

func (g *fakeGateway) setListErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listErr = err
}

func (g *fakeGateway) pageCalls(page int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Page == page {
			n++
		}
	}
	return n
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeAuth struct{}

func (fakeAuth) Login(ctx context.Context, email, password string) (string, error) {
	return "token-" + email, nil
}

func (fakeAuth) Register(ctx context.Context, fullName, email, password string) (string, error) {
	return "token-" + email, nil
}

func (fakeAuth) Profile(ctx context.Context, token string) (*models.User, error) {
	return &models.User{FullName: "Test User", Email: "user@example.com"}, nil
}

// heldStore is the local store with a List that can be paused after it has
// read the directory
type heldStore struct {
	*localstore.Store

	mu      sync.Mutex
	hold    chan struct{}
	started chan struct{}
}

func (s *heldStore) List(ctx context.Context) ([]models.Photo, error) {
	photos, err := s.Store.List(ctx)
	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		s.started <- struct{}{}
		<-hold
	}
	return photos, err
}

func (s *heldStore) block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = make(chan struct{})
}

func (s *heldStore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
}

type fixture struct {
	local   *localstore.Store
	held    *heldStore
	remote  *fakeGateway
	session *session.State
	manager *Manager
}

func newFixture(t *testing.T, remote *fakeGateway) *fixture {
	t.Helper()
	store, err := localstore.New(filepath.Join(t.TempDir(), "guest_photos"), observability.NewNopLogger())
	require.NoError(t, err)
	if remote == nil {
		remote = newFakeGateway()
	}
	held := &heldStore{Store: store, started: make(chan struct{}, 1)}
	sess := session.New(session.NewMemoryStore(), fakeAuth{}, observability.NewNopLogger())
	m := New(held, remote, sess, Options{
		PageSize: 2,
		Location: time.UTC,
		Logger:   observability.NewNopLogger(),
	})
	t.Cleanup(m.Close)
	return &fixture{local: store, held: held, remote: remote, session: sess, manager: m}
}

// login signs in and waits for the transition reload to settle
func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.session.Login(context.Background(), "user@example.com", "pw"))
	f.manager.Wait()
}

func (f *fixture) saveLocal(t *testing.T, photos ...models.Photo) {
	t.Helper()
	for i := range photos {
		require.NoError(t, f.local.Save(context.Background(), &photos[i]))
	}
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func localPhoto(id, capturedAt string) models.Photo {
	return models.Photo{ID: id, URI: "file:///photos/" + id + ".jpg", CapturedAt: at(capturedAt)}
}

func remotePhotos(n int) []models.Photo {
	out := make([]models.Photo, 0, n)
	base := at("2024-06-01T12:00:00Z")
	for i := 1; i <= n; i++ {
		out = append(out, models.Photo{
			ID:          "p" + strconv.Itoa(i),
			DownloadURL: "/uploads/p.jpg",
			CapturedAt:  base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return out
}

func photoIDs(photos []models.Photo) []string {
	out := make([]string, 0, len(photos))
	for _, p := range photos {
		out = append(out, p.ID)
	}
	return out
}

func sortedIDs(photos []models.Photo) []string {
	out := photoIDs(photos)
	sort.Strings(out)
	return out
}
