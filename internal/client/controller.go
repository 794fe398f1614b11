package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ceoorcto/internal/domain/matchup"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/internal/domain/stats"
	"github.com/okian/ceoorcto/pkg/logger"
	"github.com/okian/ceoorcto/pkg/metrics"
)

type fetchKind int

const (
	fetchForeground fetchKind = iota
	fetchPrefetch
	fetchRevalidate
	fetchKinds
)

func (k fetchKind) String() string {
	switch k {
	case fetchForeground:
		return "foreground"
	case fetchPrefetch:
		return "prefetch"
	default:
		return "revalidate"
	}
}

// slot is the single outstanding fetch of one kind. gen increases on
// every start and cancel so late results can be recognised and dropped.
type slot struct {
	gen    uint64
	cancel context.CancelFunc
	active bool
}

type activeBatch struct {
	model.Batch
	location string
	cursor   int
	played   int
	intro    bool
	flushed  bool
	// cached is set while the cache entry for this batch's key is this
	// batch, so it is not replayed once played.
	cached bool
}

// Controller drives one visitor's game. All state changes happen under
// one mutex; fetches and the dwell timer run in goroutines that re-enter
// through generation-checked callbacks.
type Controller struct {
	session   *Session
	fetcher   Fetcher
	flusher   Flusher
	analytics Analytics
	rng       matchup.Rand
	dwell     time.Duration
	after     func(time.Duration) <-chan time.Time
	intro     [2]model.Profile
	logger    logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	changed chan struct{}
	closed  bool

	state    State
	location string
	streak   int
	final    int
	batch    *activeBatch
	result   *Result
	err      error
	fellBack bool

	prefetched  *model.Batch
	prefetchLoc string
	promote     bool
	fetches     [fetchKinds]slot

	dwellGen    uint64
	dwellCancel context.CancelFunc
}

// NewController creates an idle controller. Call Start to begin.
func NewController(session *Session, fetcher Fetcher, opts ...Option) *Controller {
	if session == nil {
		session = NewSession(nil)
	}
	a, b := DefaultIntroPair()
	c := &Controller{
		session:   session,
		fetcher:   fetcher,
		analytics: NopAnalytics{},
		rng:       matchup.DefaultRand(),
		dwell:     DefaultDwell,
		after:     time.After,
		intro:     [2]model.Profile{a, b},
		changed:   make(chan struct{}),
		state:     StateIdle,
		location:  model.LocationRandom,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("client")
	}
	c.logger = c.logger.With(logger.String("session_id", session.ID))
	return c
}

// Start leaves Idle and loads the first pair. ctx bounds the whole session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.ctx != nil {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.enterLoading()
	c.notify()
	return nil
}

// Select picks a side of the displayed pair. It is ignored while a result
// is showing or when no pair is displayed.
func (c *Controller) Select(side Side) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Result{}, ErrClosed
	}
	if c.state != StateDisplaying || c.result != nil || c.batch == nil {
		return Result{}, ErrSelectionIgnored
	}
	left, right, ok := c.batch.Pair(c.batch.cursor)
	if !ok {
		return Result{}, ErrSelectionIgnored
	}
	selected, other := left, right
	if side == Right {
		selected, other = right, left
	}

	res := Result{Selected: selected, Other: other, Correct: selected.IsTechnical()}
	si, oi := 2*c.batch.cursor, 2*c.batch.cursor+1
	if side == Right {
		si, oi = oi, si
	}
	c.batch.Profiles = stats.RecordSelectionAt(c.batch.Profiles, si, oi)
	c.batch.played++
	if res.Correct {
		c.streak++
	}
	c.result = &res
	c.state = StateResolving

	c.analytics.PersonSelected(c.ctx, selected, other, c.batch.location)
	metrics.RecordSelection(res.Correct)
	c.startDwell(res.Correct)
	c.notify()
	return res, nil
}

// Reset clears the score, the batch and the prefetch slot and loads again.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.ctx == nil:
		return ErrNotStarted
	}
	c.retire()
	c.cancelAll()
	c.streak, c.final = 0, 0
	c.fellBack = false
	c.state = StateIdle
	c.enterLoading()
	c.notify()
	return nil
}

// SetLocation switches the category. The current batch and any prefetch
// are dropped. After a game over the change applies on Reset.
func (c *Controller) SetLocation(loc string) error {
	loc = normalizeLocation(loc)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if loc == c.location {
		return nil
	}
	c.location = loc
	c.fellBack = false
	defer c.notify()

	if c.ctx == nil {
		return nil
	}
	c.analytics.CategoryChanged(c.ctx, loc)
	if c.state == StateGameOver {
		return nil
	}
	c.retire()
	c.cancelAll()
	c.enterLoading()
	return nil
}

// Close abandons the session. A partly played batch is flushed first.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.ctx != nil {
		c.retire()
		c.cancelAll()
		c.cancel()
	}
	c.closed = true
	c.notify()
	return nil
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view()
}

// Await blocks until pred accepts the view or ctx ends.
func (c *Controller) Await(ctx context.Context, pred func(View) bool) (View, error) {
	for {
		c.mu.Lock()
		v := c.view()
		changed := c.changed
		closed := c.closed
		c.mu.Unlock()

		if pred(v) {
			return v, nil
		}
		if closed {
			return v, ErrClosed
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-changed:
		}
	}
}

func (c *Controller) view() View {
	v := View{
		SessionID:   c.session.ID,
		State:       c.state,
		Location:    c.location,
		Streak:      c.streak,
		FinalScore:  c.final,
		Placeholder: c.state == StateLoading && (c.fetches[fetchForeground].active || c.promote),
		Prefetched:  c.prefetched != nil,
		Err:         c.err,
	}
	if c.result != nil {
		r := *c.result
		v.Result = &r
	}
	if b := c.batch; b != nil {
		v.Variant = b.Variant
		v.BatchID = b.ID
		v.Cursor = b.cursor
		v.Pairs = b.Pairs()
		if left, right, ok := b.Pair(b.cursor); ok {
			v.Left, v.Right = &left, &right
		}
	}
	return v
}

func (c *Controller) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// enterLoading picks the next batch: the intro pair, a ready prefetch, a
// cached comparison or, failing those, a network fetch.
func (c *Controller) enterLoading() {
	c.state = StateLoading
	c.batch = nil
	c.result = nil
	c.err = nil

	v := c.nextVariant()
	if v == model.VariantFirstVisit {
		c.activate(c.introBatch(), c.location, true)
		return
	}

	if b := c.prefetched; b != nil {
		c.prefetched = nil
		if c.prefetchLoc == c.location {
			metrics.RecordPrefetch("used")
			c.activate(*b, c.location, false)
			return
		}
		metrics.RecordPrefetch("discarded")
	}

	if resp, err := c.session.Cache.Get(c.ctx, v, c.location); err == nil {
		if b := resp.Batch(); b.Pairs() > 0 {
			// A cached batch is replayed under a fresh id so its stats
			// are not taken for a retry of the original submission.
			b.ID = uuid.NewString()
			b.Variant = v
			c.activate(b, c.location, false)
			c.batch.cached = true
			c.startFetch(fetchRevalidate, v, c.location)
			return
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn(c.ctx, "comparison cache unavailable", logger.Error(err))
	}

	if c.fetches[fetchPrefetch].active && c.prefetchLoc == c.location {
		c.promote = true
		return
	}
	c.startFetch(fetchForeground, v, c.location)
}

func (c *Controller) nextVariant() model.Variant {
	v, err := c.session.Variants.Next(c.ctx)
	if err != nil {
		c.logger.Warn(c.ctx, "variant flags unavailable", logger.Error(err))
		return model.VariantDefault
	}
	return v
}

func (c *Controller) introBatch() model.Batch {
	a, b := c.intro[0], c.intro[1]
	if c.rng.IntN(2) == 1 {
		a, b = b, a
	}
	return model.Batch{Variant: model.VariantFirstVisit, Profiles: []model.Profile{a, b}}
}

func (c *Controller) activate(b model.Batch, loc string, intro bool) {
	b = b.Clone()
	for i := range b.Profiles {
		b.Profiles[i] = b.Profiles[i].ResetSession()
	}
	c.batch = &activeBatch{Batch: b, location: loc, intro: intro}
	c.state = StateDisplaying
	c.err = nil
	c.promote = false

	flipped, err := c.session.Variants.MarkServed(c.ctx, b.Variant)
	switch {
	case err != nil:
		c.logger.Warn(c.ctx, "variant flag not saved", logger.String("variant", string(b.Variant)), logger.Error(err))
	case flipped && b.Variant == model.VariantFirstVisit:
		c.analytics.FirstVisit(c.ctx)
	}
	metrics.RecordComparisonServed(string(b.Variant))

	c.viewed()
	c.preload(b.Profiles)
	c.maybePrefetch()
}

func (c *Controller) viewed() {
	if left, right, ok := c.batch.Pair(c.batch.cursor); ok {
		c.analytics.ComparisonViewed(c.ctx, left, right, c.batch.location, c.batch.intro)
	}
}

func (c *Controller) preload(profiles []model.Profile) {
	p := c.session.Preloader
	if p == nil {
		return
	}
	ps := append([]model.Profile(nil), profiles...)
	ctx := c.ctx
	go p.Preload(ctx, ps)
}

func (c *Controller) maybePrefetch() {
	b := c.batch
	if b == nil || c.prefetched != nil || c.fetches[fetchPrefetch].active {
		return
	}
	if b.Pairs()-b.cursor-1 > PrefetchThreshold {
		return
	}
	c.startFetch(fetchPrefetch, c.nextVariant(), c.location)
}

func (c *Controller) startFetch(kind fetchKind, v model.Variant, loc string) {
	s := &c.fetches[kind]
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(c.ctx)
	s.cancel, s.active = cancel, true
	if kind == fetchPrefetch {
		c.prefetchLoc = loc
		metrics.RecordPrefetch("started")
	}

	req := model.ComparisonRequest{Location: loc, Variant: v}
	go func() {
		resp, err := c.fetcher.Comparison(ctx, req)
		c.finishFetch(kind, gen, v, loc, resp, err)
	}()
}

func (c *Controller) finishFetch(kind fetchKind, gen uint64, v model.Variant, loc string, resp model.ComparisonResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.fetches[kind]
	if c.closed || s.gen != gen {
		return
	}
	s.active = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if IsCancelled(err) {
		return
	}
	if err == nil && resp.Batch().Pairs() == 0 {
		err = ErrEmptyBatch
	}
	defer c.notify()

	switch kind {
	case fetchForeground:
		c.onForeground(v, loc, resp, err)
	case fetchPrefetch:
		c.onPrefetch(loc, resp, err)
	case fetchRevalidate:
		if err != nil {
			c.logger.Debug(c.ctx, "cache revalidation failed", logger.Error(err))
			return
		}
		c.store(v, loc, resp)
		if b := c.batch; b != nil && b.Variant == v && b.location == loc {
			b.cached = false
		}
	}
}

func (c *Controller) onForeground(v model.Variant, loc string, resp model.ComparisonResponse, err error) {
	if c.state != StateLoading {
		return
	}
	if err != nil {
		if errors.Is(err, model.ErrInsufficientPopulation) && loc != model.LocationRandom && !c.fellBack {
			c.fellBack = true
			c.location = model.LocationRandom
			c.logger.Info(c.ctx, "location has too few profiles, falling back to random", logger.String("location", loc))
			c.startFetch(fetchForeground, v, model.LocationRandom)
			return
		}
		c.err = err
		metrics.RecordErrorByComponent("client", "fetch")
		c.logger.Error(c.ctx, "comparison fetch failed", logger.String("location", loc), logger.Error(err))
		return
	}
	c.store(v, loc, resp)
	b := resp.Batch()
	if b.Variant == "" {
		b.Variant = v
	}
	c.activate(b, loc, false)
	c.batch.cached = true
}

func (c *Controller) onPrefetch(loc string, resp model.ComparisonResponse, err error) {
	if loc != c.location {
		metrics.RecordPrefetch("discarded")
		return
	}
	promoted := c.promote && c.state == StateLoading
	c.promote = false
	if err != nil {
		metrics.RecordPrefetch("failed")
		c.logger.Warn(c.ctx, "prefetch failed", logger.Error(err))
		if promoted {
			c.startFetch(fetchForeground, c.nextVariant(), c.location)
		}
		return
	}
	b := resp.Batch()
	if promoted {
		metrics.RecordPrefetch("used")
		c.activate(b, loc, false)
		return
	}
	metrics.RecordPrefetch("ready")
	c.prefetched = &b
	c.preload(b.Profiles)
}

func (c *Controller) store(v model.Variant, loc string, resp model.ComparisonResponse) {
	if err := c.session.Cache.Put(c.ctx, v, loc, resp); err != nil {
		c.logger.Warn(c.ctx, "comparison not cached", logger.Error(err))
	}
}

func (c *Controller) startDwell(correct bool) {
	c.dwellGen++
	gen := c.dwellGen
	ctx, cancel := context.WithCancel(c.ctx)
	c.dwellCancel = cancel
	timer := c.after(c.dwell)

	go func() {
		select {
		case <-timer:
		case <-ctx.Done():
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.dwellGen {
			return
		}
		cancel()
		c.dwellCancel = nil
		c.resolve(correct)
		c.notify()
	}()
}

// resolve runs when the dwell ends.
func (c *Controller) resolve(correct bool) {
	c.result = nil
	if !correct {
		c.state = StateGameOver
		c.final = c.streak
		metrics.RecordStreak(c.streak)
		// A lost game never moves past the fifth pair, so the pairs
		// played so far are flushed now rather than dropped.
		c.retire()
		return
	}

	c.batch.cursor++
	if c.batch.cursor < c.batch.Pairs() {
		c.state = StateDisplaying
		c.viewed()
		c.maybePrefetch()
		return
	}
	c.retire()
	c.enterLoading()
}

// retire flushes the active batch and drops its cache entry.
func (c *Controller) retire() {
	c.flush()
	if b := c.batch; b != nil && b.cached {
		b.cached = false
		if err := c.session.Cache.Invalidate(c.ctx, b.Variant, b.location); err != nil {
			c.logger.Debug(c.ctx, "cache entry not dropped", logger.Error(err))
		}
	}
}

// flush hands the played part of the active batch to the flusher once:
// after its last pair, or earlier when the game ends, resets, changes
// location or closes. The intro pair is never flushed.
func (c *Controller) flush() {
	b := c.batch
	if b == nil || b.intro || b.flushed || b.played == 0 {
		return
	}
	b.flushed = true

	people := make([]model.Profile, 0, len(b.Profiles))
	for _, p := range b.Profiles {
		if p.SessionTotalDelta > 0 {
			people = append(people, p)
		}
	}
	if c.flusher == nil {
		return
	}
	job := model.FlushJob{BatchID: b.ID, SessionID: c.session.ID, People: people, Enqueued: time.Now()}
	if err := c.flusher.Flush(c.ctx, job); err != nil {
		metrics.RecordFlushError()
		c.logger.Warn(c.ctx, "batch flush not accepted",
			logger.String("batch_id", b.ID),
			logger.Int("profiles", len(people)),
			logger.Error(err),
		)
	}
}

func (c *Controller) cancelAll() {
	for i := range c.fetches {
		s := &c.fetches[i]
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.gen++
		s.active = false
	}
	c.dwellGen++
	if c.dwellCancel != nil {
		c.dwellCancel()
		c.dwellCancel = nil
	}
	c.prefetched = nil
	c.promote = false
	c.result = nil
}

func normalizeLocation(loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" || strings.EqualFold(loc, model.LocationRandom) {
		return model.LocationRandom
	}
	return loc
}
