// Package collection owns the visible photo collection. It reads from the
// on-device store in guest mode and from the photo service when signed in,
// pages remote results, and discards results that belong to an older
// session or an older query.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/session"
	"github.com/photosync/journal/internal/views"
)

const (
	sourceLocal  = "local"
	sourceRemote = "remote"

	intentLoad     = "load"
	intentLoadMore = "load_more"
)

// LocalStore is the on-device photo store used in guest mode
type LocalStore interface {
	Save(ctx context.Context, photo *models.Photo) error
	List(ctx context.Context) ([]models.Photo, error)
	Delete(ctx context.Context, id string) error
}

// Gateway is the photo service used in authenticated mode
type Gateway interface {
	List(ctx context.Context, q models.ListQuery) (*models.PhotoPage, error)
	Create(ctx context.Context, form *models.PhotoForm) (*models.Photo, error)
	Delete(ctx context.Context, id string) error
	DaysWithPhotos(ctx context.Context) ([]models.DayCount, error)
}

// Session is the part of the session state the manager depends on
type Session interface {
	Status() session.Status
	Expire(ctx context.Context)
	Subscribe(fn session.Listener) func()
}

// Snapshot is an immutable copy of the manager state
type Snapshot struct {
	Status      session.Status
	Query       models.PhotoQuery
	Photos      []models.Photo
	Page        models.PageState
	Loading     bool
	LoadingMore bool
	Err         error
	Version     uint64
}

// Options tune a Manager. Zero values are usable.
type Options struct {
	PageSize int
	// Location is the device calendar used for local date filtering
	Location *time.Location
	Logger   *observability.Logger
	Metrics  *observability.CollectionMetrics
}

// fetchTag identifies the state a fetch was issued against
type fetchTag struct {
	status   session.Status
	epoch    uint64
	seq      uint64
	mutation uint64
}

// mutation is a delete or guest create applied while a fetch was in flight.
// Fetch results issued before it are replayed through it before they land.
type mutation struct {
	seq      uint64
	removeID string
	add      *models.Photo
}

// Manager is the photo collection. All methods are safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	status      session.Status
	query       models.PhotoQuery
	photos      []models.Photo
	page        models.PageState
	loading     bool
	loadingMore bool
	err         error
	version     uint64
	epoch       uint64 // bumped on every session transition
	loadSeq     uint64 // bumped on every Load
	mutationSeq uint64 // bumped on every applied Delete or CreateLocal
	mutations   []mutation
	closed      bool

	notifyMu     sync.Mutex
	lastNotified uint64
	subMu        sync.Mutex
	subs         map[int]func(Snapshot)
	nextSub      int

	local    LocalStore
	remote   Gateway
	session  Session
	pageSize int
	loc      *time.Location
	logger   *observability.Logger
	metrics  *observability.CollectionMetrics

	wg          sync.WaitGroup
	unsubscribe func()
}

// New creates a Manager and subscribes it to session transitions. The
// collection is empty until the first Load.
func New(local LocalStore, remote Gateway, sess Session, opts Options) *Manager {
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultPageSize
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = observability.Component("collection")
	}

	m := &Manager{
		status:   session.StatusGuest,
		query:    models.PhotoQuery{Limit: opts.PageSize},
		photos:   []models.Photo{},
		page:     models.PageState{PageSize: opts.PageSize},
		subs:     make(map[int]func(Snapshot)),
		local:    local,
		remote:   remote,
		session:  sess,
		pageSize: opts.PageSize,
		loc:      opts.Location,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}

	m.unsubscribe = sess.Subscribe(m.onTransition)
	status := sess.Status()
	m.mu.Lock()
	if m.epoch == 0 {
		m.status = status
	}
	m.mu.Unlock()
	return m
}

// Snapshot returns a copy of the current state
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	photos := make([]models.Photo, len(m.photos))
	for i := range m.photos {
		photos[i] = m.photos[i].Clone()
	}
	return Snapshot{
		Status:      m.status,
		Query:       m.query,
		Photos:      photos,
		Page:        m.page,
		Loading:     m.loading,
		LoadingMore: m.loadingMore,
		Err:         m.err,
		Version:     m.version,
	}
}

// Subscribe registers fn to receive snapshots after every change. Snapshots
// are delivered one at a time in increasing Version order; intermediate
// versions may be skipped. fn must not call back into mutating methods.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	snap := m.Snapshot()
	if snap.Version <= m.lastNotified {
		return
	}
	m.lastNotified = snap.Version

	m.subMu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Load resets the cursor to page 1 of q and repopulates the collection.
// The most recent Load wins; results of earlier ones are discarded.
func (m *Manager) Load(ctx context.Context, q models.PhotoQuery) error {
	if err := models.ValidateDate(q.Date); err != nil {
		return err
	}
	q = q.WithDefaults(m.pageSize)

	ctx, span := observability.StartServiceSpan(ctx, "collection", "Load")
	defer span.End()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.loadSeq++
	m.query = q
	m.loading = true
	m.loadingMore = false
	m.err = nil
	m.version++
	tag := fetchTag{status: m.status, epoch: m.epoch, seq: m.loadSeq, mutation: m.mutationSeq}
	m.mutations = nil
	m.mu.Unlock()
	m.notify()

	span.SetAttributes(observability.SessionStatus(string(tag.status)))

	start := time.Now()
	var (
		photos []models.Photo
		page   models.PageState
		err    error
		source string
	)
	if tag.status == session.StatusAuthenticated {
		source = sourceRemote
		photos, page, err = m.fetchRemote(ctx, q, 1)
	} else {
		source = sourceLocal
		photos, page, err = m.fetchLocal(ctx, q)
	}
	m.metrics.RecordFetch(ctx, source, intentLoad, time.Since(start))

	m.mu.Lock()
	if !m.isCurrentLocked(tag) {
		expire := m.shouldExpireLocked(tag, err)
		m.mu.Unlock()
		m.dropStale(ctx, intentLoad, tag)
		if expire {
			m.session.Expire(ctx)
		}
		return err
	}

	m.loading = false
	if err != nil {
		m.err = err
	} else {
		m.photos, m.page = m.replayLocked(tag, photos, page)
		m.err = nil
	}
	m.trimMutationsLocked()
	m.version++
	expire := m.shouldExpireLocked(tag, err)
	m.mu.Unlock()
	m.notify()

	if err != nil {
		m.fail(ctx, "load", err)
		observability.RecordError(span, err)
	} else {
		observability.SetSuccess(span)
	}
	if expire {
		m.session.Expire(ctx)
	}
	return err
}

// LoadMore appends the next remote page. It does nothing in guest mode,
// when the last page has been reached, or while any fetch is in flight.
func (m *Manager) LoadMore(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.status != session.StatusAuthenticated || !m.page.HasMore || m.loading || m.loadingMore {
		m.mu.Unlock()
		return nil
	}
	m.loadingMore = true
	m.version++
	next := m.page.CurrentPage + 1
	q := m.query
	tag := fetchTag{status: m.status, epoch: m.epoch, seq: m.loadSeq, mutation: m.mutationSeq}
	m.mu.Unlock()
	m.notify()

	ctx, span := observability.StartServiceSpan(ctx, "collection", "LoadMore")
	defer span.End()
	span.SetAttributes(observability.Page(next))

	start := time.Now()
	photos, page, err := m.fetchRemote(ctx, q, next)
	m.metrics.RecordFetch(ctx, sourceRemote, intentLoadMore, time.Since(start))

	m.mu.Lock()
	if !m.isCurrentLocked(tag) {
		expire := m.shouldExpireLocked(tag, err)
		m.mu.Unlock()
		m.dropStale(ctx, intentLoadMore, tag)
		if expire {
			m.session.Expire(ctx)
		}
		return err
	}

	m.loadingMore = false
	switch {
	case err != nil:
		m.err = err
	case page.CurrentPage != m.page.CurrentPage+1:
		m.logger.WithFields(map[string]interface{}{
			"expected_page": m.page.CurrentPage + 1,
			"got_page":      page.CurrentPage,
		}).Warn("Ignoring out of sequence page")
	default:
		photos, page = m.replayLocked(tag, photos, page)
		m.photos = appendUnique(m.photos, photos)
		m.page = page
		m.err = nil
	}
	m.trimMutationsLocked()
	m.version++
	expire := m.shouldExpireLocked(tag, err)
	m.mu.Unlock()
	m.notify()

	if err != nil {
		m.fail(ctx, "load_more", err)
		observability.RecordError(span, err)
	} else {
		observability.SetSuccess(span)
	}
	if expire {
		m.session.Expire(ctx)
	}
	return err
}

// Refresh reloads page 1 of the current query
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	q := m.query
	m.mu.Unlock()
	return m.Load(ctx, q)
}

// SetDateFilter reloads with a new day filter; an empty date clears it
func (m *Manager) SetDateFilter(ctx context.Context, date string) error {
	if err := models.ValidateDate(date); err != nil {
		return err
	}
	m.mu.Lock()
	q := m.query
	m.mu.Unlock()
	q.Date = date
	return m.Load(ctx, q)
}

// CreateLocal persists a guest photo and prepends it to the collection.
// It fails with ErrSessionMismatch unless the session is in guest mode.
func (m *Manager) CreateLocal(ctx context.Context, photo *models.Photo) error {
	m.mu.Lock()
	tag := fetchTag{status: m.status, epoch: m.epoch}
	m.mu.Unlock()
	if tag.status != session.StatusGuest {
		return models.ErrSessionMismatch
	}

	ctx, span := observability.StartServiceSpan(ctx, "collection", "CreateLocal")
	defer span.End()
	span.SetAttributes(observability.PhotoID(photo.ID))

	p := photo.Clone()
	if err := m.local.Save(ctx, &p); err != nil {
		m.recordError(tag, err)
		m.fail(ctx, "create_local", err)
		observability.RecordError(span, err)
		return err
	}

	m.mu.Lock()
	if m.status == tag.status && m.epoch == tag.epoch {
		if m.matchesFilterLocked(p) {
			m.photos = prepend(m.photos, p)
			m.page = models.LocalPageState(len(m.photos))
		}
		m.recordMutationLocked(mutation{add: &p})
		m.err = nil
		m.version++
	}
	m.mu.Unlock()
	m.notify()

	observability.SetSuccess(span)
	return nil
}

// CreateRemote uploads a photo and then refreshes page 1. A non-nil photo
// returned together with an error means the upload succeeded but the
// refresh did not.
func (m *Manager) CreateRemote(ctx context.Context, form *models.PhotoForm) (*models.Photo, error) {
	m.mu.Lock()
	tag := fetchTag{status: m.status, epoch: m.epoch}
	m.mu.Unlock()
	if tag.status != session.StatusAuthenticated {
		return nil, models.ErrSessionMismatch
	}
	if m.remote == nil {
		return nil, errNoRemote
	}

	ctx, span := observability.StartServiceSpan(ctx, "collection", "CreateRemote")
	defer span.End()

	created, err := m.remote.Create(ctx, form)
	if err != nil {
		expire := m.recordError(tag, err)
		m.fail(ctx, "create_remote", err)
		observability.RecordError(span, err)
		if expire {
			m.session.Expire(ctx)
		}
		return nil, err
	}
	span.SetAttributes(observability.PhotoID(created.ID))

	m.mu.Lock()
	current := m.status == tag.status && m.epoch == tag.epoch
	m.mu.Unlock()
	if !current {
		// the transition reload already replaced the collection
		return created, nil
	}
	if err := m.Refresh(ctx); err != nil {
		return created, fmt.Errorf("refresh after create: %w", err)
	}
	observability.SetSuccess(span)
	return created, nil
}

// Delete removes a photo from the source that owns it and then from the
// collection. Deleting a photo that no longer exists is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := models.ValidatePhotoID(id); err != nil {
		return err
	}
	m.mu.Lock()
	tag := fetchTag{status: m.status, epoch: m.epoch}
	m.mu.Unlock()

	ctx, span := observability.StartServiceSpan(ctx, "collection", "Delete")
	defer span.End()
	span.SetAttributes(observability.PhotoID(id))

	var err error
	if tag.status == session.StatusAuthenticated {
		if m.remote == nil {
			err = errNoRemote
		} else {
			err = m.remote.Delete(ctx, id)
			if errors.Is(err, models.ErrNotFound) {
				err = nil
			}
		}
	} else {
		err = m.local.Delete(ctx, id)
	}
	if err != nil {
		expire := m.recordError(tag, err)
		m.fail(ctx, "delete", err)
		observability.RecordError(span, err)
		if expire {
			m.session.Expire(ctx)
		}
		return err
	}

	m.mu.Lock()
	if m.status == tag.status && m.epoch == tag.epoch {
		m.recordMutationLocked(mutation{removeID: id})
		if rest, removed := without(m.photos, id); removed {
			m.photos = rest
			if tag.status == session.StatusGuest {
				m.page = models.LocalPageState(len(rest))
			} else if m.page.TotalCount > 0 {
				m.page.TotalCount--
			}
			m.version++
		}
	}
	m.mu.Unlock()
	m.notify()

	observability.SetSuccess(span)
	return nil
}

// DaysWithPhotos returns calendar markers for the active source
func (m *Manager) DaysWithPhotos(ctx context.Context) ([]models.DayCount, error) {
	m.mu.Lock()
	tag := fetchTag{status: m.status, epoch: m.epoch}
	m.mu.Unlock()

	var (
		days []models.DayCount
		err  error
	)
	if tag.status == session.StatusAuthenticated {
		if m.remote == nil {
			err = errNoRemote
		} else {
			days, err = m.remote.DaysWithPhotos(ctx)
		}
	} else {
		var photos []models.Photo
		if photos, err = m.local.List(ctx); err == nil {
			days = views.DaysWithPhotos(photos, m.loc)
		}
	}
	if err != nil {
		expire := m.recordError(tag, err)
		m.fail(ctx, "days_with_photos", err)
		if expire {
			m.session.Expire(ctx)
		}
		return nil, err
	}
	return days, nil
}

// Wait blocks until background reloads started by session transitions finish
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close detaches the manager from the session and waits for background work
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	unsubscribe()
	m.wg.Wait()
}

// onTransition replaces the collection whenever the session changes. The
// visible set is cleared before the listener returns; the reload from the
// new source runs in the background.
func (m *Manager) onTransition(ctx context.Context, t session.Transition) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.status = t.To
	m.epoch++
	m.photos = []models.Photo{}
	m.page = models.PageState{PageSize: m.query.Limit}
	m.loading = false
	m.loadingMore = false
	m.mutations = nil
	m.err = nil
	m.version++
	q := m.query
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.RecordTransition(ctx, string(t.From), string(t.To))
	m.logger.WithFields(map[string]interface{}{
		"from":   string(t.From),
		"to":     string(t.To),
		"reason": string(t.Reason),
	}).Info("Reloading collection after session transition")
	m.notify()

	go func() {
		defer m.wg.Done()
		_ = m.Load(context.WithoutCancel(ctx), q)
	}()
}

func (m *Manager) fetchLocal(ctx context.Context, q models.PhotoQuery) ([]models.Photo, models.PageState, error) {
	all, err := m.local.List(ctx)
	if err != nil {
		return nil, models.PageState{}, err
	}
	photos := views.FilterByDate(all, q.Date, m.loc)
	sortNewestFirst(photos)
	return photos, models.LocalPageState(len(photos)), nil
}

func (m *Manager) fetchRemote(ctx context.Context, q models.PhotoQuery, pageNum int) ([]models.Photo, models.PageState, error) {
	if m.remote == nil {
		return nil, models.PageState{}, errNoRemote
	}
	page, err := m.remote.List(ctx, models.ListQuery{Page: pageNum, Limit: q.Limit, Date: q.Date})
	if err != nil {
		return nil, models.PageState{}, err
	}
	normalized := *page
	if normalized.Page <= 0 {
		normalized.Page = pageNum
	}
	if normalized.Limit <= 0 {
		normalized.Limit = q.Limit
	}
	return appendUnique(nil, page.Items), models.PageStateFrom(&normalized), nil
}

// recordMutationLocked remembers a delete or create so fetches already in
// flight cannot bring back the state it replaced.
func (m *Manager) recordMutationLocked(mut mutation) {
	m.mutationSeq++
	if !m.loading && !m.loadingMore {
		return
	}
	mut.seq = m.mutationSeq
	m.mutations = append(m.mutations, mut)
}

// trimMutationsLocked forgets recorded mutations once no fetch needs them
func (m *Manager) trimMutationsLocked() {
	if !m.loading && !m.loadingMore {
		m.mutations = nil
	}
}

// replayLocked applies the mutations made after tag was issued to a fetch
// result. A remote total only drops for photos the result still contained.
func (m *Manager) replayLocked(tag fetchTag, photos []models.Photo, page models.PageState) ([]models.Photo, models.PageState) {
	replayed := false
	for _, mut := range m.mutations {
		if mut.seq <= tag.mutation {
			continue
		}
		replayed = true
		if mut.add != nil {
			if tag.status == session.StatusGuest && m.matchesFilterLocked(*mut.add) {
				photos = prepend(photos, *mut.add)
			}
			continue
		}
		rest, removed := without(photos, mut.removeID)
		photos = rest
		if removed && tag.status == session.StatusAuthenticated && page.TotalCount > 0 {
			page.TotalCount--
		}
	}
	if replayed && tag.status == session.StatusGuest {
		page = models.LocalPageState(len(photos))
	}
	return photos, page
}

func (m *Manager) matchesFilterLocked(p models.Photo) bool {
	return m.query.Date == "" || models.CalendarDate(p.CapturedAt, m.loc) == m.query.Date
}

// isCurrentLocked reports whether a fetch result may still be applied
func (m *Manager) isCurrentLocked(tag fetchTag) bool {
	return !m.closed && tag.status == m.status && tag.epoch == m.epoch && tag.seq == m.loadSeq
}

// shouldExpireLocked reports whether err means the token of the session
// that is still active was rejected.
func (m *Manager) shouldExpireLocked(tag fetchTag, err error) bool {
	return errors.Is(err, models.ErrUnauthorized) &&
		tag.status == session.StatusAuthenticated &&
		m.status == session.StatusAuthenticated &&
		tag.epoch == m.epoch
}

// recordError stores err on the snapshot when the session has not moved on,
// and reports whether the session should be expired.
func (m *Manager) recordError(tag fetchTag, err error) bool {
	m.mu.Lock()
	current := tag.status == m.status && tag.epoch == m.epoch
	if current {
		m.err = err
		m.version++
	}
	expire := m.shouldExpireLocked(tag, err)
	m.mu.Unlock()
	if current {
		m.notify()
	}
	return expire
}

func (m *Manager) dropStale(ctx context.Context, intent string, tag fetchTag) {
	m.metrics.RecordStaleDrop(ctx, intent)
	m.logger.WithFields(map[string]interface{}{
		"intent": intent,
		"status": string(tag.status),
		"epoch":  tag.epoch,
	}).Debug("Dropping stale fetch result")
}

func (m *Manager) fail(ctx context.Context, operation string, err error) {
	kind := models.KindName(err)
	m.metrics.RecordError(ctx, operation, kind)
	m.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"operation": operation,
		"kind":      kind,
	}).Warn("Collection operation failed")
}

var errNoRemote = fmt.Errorf("%w: no photo service configured", models.ErrNetworkUnavailable)

// sortNewestFirst orders by capture time, most recent first, ties by id
func sortNewestFirst(photos []models.Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		a, b := photos[i].CapturedAt, photos[j].CapturedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return photos[i].ID < photos[j].ID
	})
}

// appendUnique appends the photos of src whose id is not yet in dst
func appendUnique(dst, src []models.Photo) []models.Photo {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, p := range dst {
		seen[p.ID] = struct{}{}
	}
	out := make([]models.Photo, len(dst), len(dst)+len(src))
	copy(out, dst)
	for _, p := range src {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func prepend(photos []models.Photo, p models.Photo) []models.Photo {
	rest, _ := without(photos, p.ID)
	out := make([]models.Photo, 0, len(rest)+1)
	out = append(out, p)
	return append(out, rest...)
}

func without(photos []models.Photo, id string) ([]models.Photo, bool) {
	out := make([]models.Photo, 0, len(photos))
	removed := false
	for _, p := range photos {
		if p.ID == id {
			removed = true
			continue
		}
		out = append(out, p)
	}
	return out, removed
}
