// Package search runs one logical search at a time across every
// known session: never blocking the caller, cancellable at any
// point, streaming partial results, small files before large files.
package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/filter"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/registry"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/rollup"
	"github.com/retsubhtym/agent-sessions-sub002/internal/logging"
	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

var log = logging.ForComponent(logging.CompSearch)

// State names the coordinator's lifecycle phases.
type State string

const (
	StateIdle     State = "idle"
	StateSmall    State = "small-phase"
	StateLarge    State = "large-phase"
	StateCanceled State = "canceled"
)

// Progress reports how far the current phase has advanced.
type Progress struct {
	State   State
	Scanned int
	Total   int
}

// Options tune one coordinator. Zero values pick the defaults the
// rest of the system uses.
type Options struct {
	// LargeFileThreshold partitions candidates; files at or above it
	// wait for the sequential large phase.
	LargeFileThreshold int64
	// BatchSize is the small-phase batch width.
	BatchSize int
	// ProgressHz bounds how often OnProgress fires.
	ProgressHz float64

	// OnProgress and OnResults are invoked from the coordinating
	// goroutine. OnResults receives the full, monotonically growing
	// result list.
	OnProgress func(Progress)
	OnResults  func([]*transcript.Session)
}

const (
	defaultLargeThreshold = 10 << 20
	defaultBatchSize      = 64
	defaultProgressHz     = 10
)

// Coordinator orchestrates search runs. All collaborators are
// injected; the store may be nil, in which case every run scans the
// full registry.
type Coordinator struct {
	store *rollup.Store
	reg   *registry.Registry
	eng   *filter.Engine
	opts  Options

	gen atomic.Uint64

	mu       sync.Mutex
	state    State
	results  []*transcript.Session
	seen     map[string]bool
	scanned  int
	total    int
	promoted string // single-slot promotion mailbox, "" when empty

	hydrating singleflight.Group
}

func NewCoordinator(store *rollup.Store, reg *registry.Registry, eng *filter.Engine, opts Options) *Coordinator {
	if opts.LargeFileThreshold <= 0 {
		opts.LargeFileThreshold = defaultLargeThreshold
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ProgressHz <= 0 {
		opts.ProgressHz = defaultProgressHz
	}
	return &Coordinator{
		store: store,
		reg:   reg,
		eng:   eng,
		opts:  opts,
		state: StateIdle,
	}
}

// Start begins a new run, superseding any run in flight. It returns
// immediately; results and progress arrive via the callbacks and the
// Results/Snapshot accessors. The returned channel closes when this
// run finishes, is canceled, or is superseded.
func (c *Coordinator) Start(ctx context.Context, q filter.Query) <-chan struct{} {
	myGen := c.gen.Add(1)

	c.mu.Lock()
	c.state = StateSmall
	c.results = nil
	c.seen = make(map[string]bool)
	c.scanned, c.total = 0, 0
	c.promoted = ""
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(ctx, myGen, q)
	}()
	return done
}

// Cancel stops the current run. Results collected so far remain
// readable.
func (c *Coordinator) Cancel() {
	c.gen.Add(1)
	c.mu.Lock()
	c.state = StateCanceled
	c.mu.Unlock()
}

// Promote asks the large phase to scan the given session next. Only
// one promotion is held at a time; a newer request replaces an
// unconsumed older one.
func (c *Coordinator) Promote(id string) {
	c.mu.Lock()
	c.promoted = id
	c.mu.Unlock()
}

// Results returns a snapshot of the current result list.
func (c *Coordinator) Results() []*transcript.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*transcript.Session, len(c.results))
	copy(out, c.results)
	return out
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) alive(myGen uint64) bool {
	return c.gen.Load() == myGen
}

func (c *Coordinator) run(ctx context.Context, myGen uint64, q filter.Query) {
	limiter := rate.NewLimiter(rate.Limit(c.opts.ProgressHz), 1)

	candidates := c.candidates(q)
	var small, large []*transcript.Session
	for _, sess := range candidates {
		if sess.FileSize >= c.opts.LargeFileThreshold {
			large = append(large, sess)
		} else {
			small = append(small, sess)
		}
	}
	// Recently touched files are scanned first in both phases. The
	// registry orders by start time, which a stat-only discovery never
	// fills in, so the file mtime is the reliable signal here.
	byRecency(small)
	byRecency(large)
	log.Debug("search run partitioned",
		slog.Int("small", len(small)), slog.Int("large", len(large)))

	if !c.beginPhase(myGen, StateSmall, len(small)) {
		return
	}
	c.emitProgress(limiter, true)

	for start := 0; start < len(small); start += c.opts.BatchSize {
		if ctx.Err() != nil || !c.alive(myGen) {
			return
		}
		end := start + c.opts.BatchSize
		if end > len(small) {
			end = len(small)
		}
		batch := c.hydrateBatch(ctx, small[start:end])
		if !c.absorb(myGen, batch, q, len(batch)) {
			return
		}
		c.emitProgress(limiter, false)
	}

	if !c.beginPhase(myGen, StateLarge, len(large)) {
		return
	}
	c.emitProgress(limiter, true)

	// Strictly sequential: one large file at a time, with the
	// promotion mailbox consulted before each pick.
	remaining := large
	for len(remaining) > 0 {
		if ctx.Err() != nil || !c.alive(myGen) {
			return
		}
		next := c.pickNext(&remaining)
		hydrated := c.hydrate(next)
		if !c.absorb(myGen, []*transcript.Session{hydrated}, q, 1) {
			return
		}
		c.emitProgress(limiter, false)
	}

	c.mu.Lock()
	if c.alive(myGen) {
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.emitProgress(limiter, true)
}

// byRecency sorts sessions newest file first, ties broken by ID for
// a stable order.
func byRecency(sessions []*transcript.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].FileModTime.Equal(sessions[j].FileModTime) {
			return sessions[i].FileModTime.After(sessions[j].FileModTime)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// candidates narrows via the store prefilter when possible, falling
// back to the full registry snapshot when the store is missing,
// errors out, or returns nothing.
func (c *Coordinator) candidates(q filter.Query) []*transcript.Session {
	all := c.reg.Snapshot()
	if c.store == nil {
		return all
	}
	ids, err := c.store.Prefilter(rollup.PrefilterQuery{
		Sources: q.Sources,
		Model:   q.Model,
		RepoSub: q.Repo,
		Since:   q.Since,
		Until:   q.Until,
	})
	if err != nil {
		log.Warn("prefilter failed, scanning everything", slog.String("error", err.Error()))
		return all
	}
	if len(ids) == 0 {
		return all
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	var narrowed []*transcript.Session
	for _, sess := range all {
		if keep[sess.ID] {
			narrowed = append(narrowed, sess)
		}
	}
	if len(narrowed) == 0 {
		return all
	}
	return narrowed
}

func (c *Coordinator) beginPhase(myGen uint64, state State, total int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive(myGen) {
		return false
	}
	c.state = state
	c.scanned, c.total = 0, total
	return true
}

// absorb filters a group of hydrated sessions and appends matches,
// writing hydrated sessions back to the registry. All shared-state
// mutation happens here, on the coordinating goroutine, after the
// generation check.
func (c *Coordinator) absorb(myGen uint64, group []*transcript.Session, q filter.Query, scanned int) bool {
	matches := make([]*transcript.Session, 0, len(group))
	for _, sess := range group {
		if c.eng.Matches(sess, q) {
			matches = append(matches, sess)
		}
	}

	c.mu.Lock()
	if !c.alive(myGen) {
		c.mu.Unlock()
		return false
	}
	for _, sess := range group {
		c.reg.Put(sess)
	}
	for _, sess := range matches {
		if c.seen[sess.ID] {
			continue
		}
		c.seen[sess.ID] = true
		c.results = append(c.results, sess)
	}
	c.scanned += scanned
	c.mu.Unlock()

	if len(matches) > 0 && c.opts.OnResults != nil {
		c.opts.OnResults(c.Results())
	}
	return true
}

// hydrateBatch parses the lightweight members of one batch
// concurrently. Hydration only reads files and returns sessions;
// nothing shared is touched here.
func (c *Coordinator) hydrateBatch(ctx context.Context, batch []*transcript.Session) []*transcript.Session {
	out := make([]*transcript.Session, len(batch))
	g, _ := errgroup.WithContext(ctx)
	for i, sess := range batch {
		g.Go(func() error {
			out[i] = c.hydrate(sess)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// hydrate returns a fully parsed session, deduplicating concurrent
// parses of the same file.
func (c *Coordinator) hydrate(sess *transcript.Session) *transcript.Session {
	if !sess.Lightweight() {
		return sess
	}
	v, _, _ := c.hydrating.Do(sess.ID, func() (any, error) {
		return transcript.Hydrate(sess), nil
	})
	return v.(*transcript.Session)
}

// pickNext consumes the promotion mailbox if the promoted session is
// still pending, otherwise takes the next session in order.
func (c *Coordinator) pickNext(remaining *[]*transcript.Session) *transcript.Session {
	c.mu.Lock()
	promoted := c.promoted
	c.promoted = ""
	c.mu.Unlock()

	rem := *remaining
	idx := 0
	if promoted != "" {
		for i, sess := range rem {
			if sess.ID == promoted {
				idx = i
				break
			}
		}
	}
	next := rem[idx]
	*remaining = append(rem[:idx], rem[idx+1:]...)
	return next
}

func (c *Coordinator) emitProgress(limiter *rate.Limiter, force bool) {
	if c.opts.OnProgress == nil {
		return
	}
	if !force && !limiter.Allow() {
		return
	}
	c.mu.Lock()
	p := Progress{State: c.state, Scanned: c.scanned, Total: c.total}
	c.mu.Unlock()
	c.opts.OnProgress(p)
}

// WaitTimeout is a test and CLI helper: block until the run's done
// channel closes or the timeout passes.
func WaitTimeout(done <-chan struct{}, d time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
