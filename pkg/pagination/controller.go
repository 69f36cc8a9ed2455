package pagination

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/flickr-search/pkg/flickr"
	"github.com/Sternrassler/flickr-search/pkg/logging"
	"github.com/Sternrassler/flickr-search/pkg/photo"
)

// Prometheus metrics for pagination sessions.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flickr_pagination_fetches_total",
		Help: "Page fetches completed by the pagination controller by kind (first, more) and outcome",
	}, []string{"kind", "outcome"})

	staleCallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flickr_pagination_stale_callbacks_total",
		Help: "Fetch completions dropped because their request was superseded",
	})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flickr_pagination_queries_total",
		Help: "Debounced queries executed by kind (search, empty)",
	}, []string{"kind"})
)

const (
	kindFirst = "first"
	kindMore  = "more"
)

// Config holds controller configuration.
type Config struct {
	// PageSize is the number of results per page
	PageSize int

	// Debounce is the quiet period for SubmitQuery. Zero means the default;
	// a negative value executes queries immediately.
	Debounce time.Duration

	// Adapter maps raw records to items (default: photo.Adapt)
	Adapter photo.Adapter

	// Logger defaults to the "pagination" component logger
	Logger *zerolog.Logger
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: 10,
		Debounce: 300 * time.Millisecond,
		Adapter:  photo.Adapt,
	}
}

// Controller runs one search-and-pagination session.
type Controller struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger

	mu      sync.Mutex
	mailbox []func()
	closed  bool
	final   State

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}

	sinkMu sync.RWMutex
	sink   EventSink

	// Owned by the run goroutine.
	phase    Phase
	query    string
	page     int
	items    []photo.Item
	inflight Canceler
	token    uint64
	timer    *time.Timer
	timerGen uint64
}

// New creates a controller and starts its goroutine. Call Close to stop it.
func New(fetcher Fetcher, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.Adapter == nil {
		cfg.Adapter = def.Adapter
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "pagination").Logger()
	} else {
		logger = logging.NewLogger("pagination")
	}

	c := &Controller{
		fetcher: fetcher,
		config:  cfg,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		phase:   PhaseIdle,
		page:    1,
	}

	go c.run()

	return c
}

// SubmitQuery schedules text as the new query. A later call within the
// debounce period replaces it. When the query runs, the in-flight fetch is
// cancelled and the results are cleared; a blank text stops there.
func (c *Controller) SubmitQuery(text string) {
	c.post(func() { c.debounce(text) })
}

// RequestMore fetches the next page if the API reported one and nothing is
// in flight. Otherwise it does nothing.
func (c *Controller) RequestMore() {
	c.post(func() {
		if c.phase != PhaseHasMore {
			c.logger.Debug().Str("phase", c.phase.String()).Msg("RequestMore ignored")
			return
		}
		c.startFetch(PhaseFetchingMore)
	})
}

// RetryMore repeats the further-page fetch after FetchMoreFailed.
func (c *Controller) RetryMore() {
	c.post(func() {
		switch c.phase {
		case PhaseFetchMoreFailed, PhaseHasMore:
			c.startFetch(PhaseFetchingMore)
		default:
			c.logger.Debug().Str("phase", c.phase.String()).Msg("RetryMore ignored")
		}
	})
}

// SetSink installs the event sink. A nil sink discards events. Events that
// start after SetSink returns go to the new sink.
func (c *Controller) SetSink(sink EventSink) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.sink = sink
}

// Snapshot returns the current session state. It waits for previously
// posted calls to be applied, so it must not be called from an event sink.
func (c *Controller) Snapshot() State {
	reply := make(chan State, 1)
	if !c.post(func() { reply <- c.snapshot() }) {
		return c.finalState()
	}

	select {
	case s := <-reply:
		return s
	case <-c.stopped:
		return c.finalState()
	}
}

// Close stops the controller: the pending query is dropped, the in-flight
// fetch is cancelled and no further events are emitted. It waits for the
// controller goroutine and must not be called from an event sink.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.stopped
		return
	}
	c.closed = true
	c.mailbox = nil
	c.mu.Unlock()

	c.SetSink(nil)
	close(c.quit)
	<-c.stopped
}

// post queues fn for the run goroutine. It never blocks and reports false
// once the controller is closed.
func (c *Controller) post(fn func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mailbox = append(c.mailbox, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

func (c *Controller) run() {
	defer close(c.stopped)

	for {
		select {
		case <-c.quit:
			c.shutdown()
			return
		case <-c.wake:
		}

		c.mu.Lock()
		batch := c.mailbox
		c.mailbox = nil
		c.mu.Unlock()

		for _, fn := range batch {
			select {
			case <-c.quit:
				c.shutdown()
				return
			default:
			}
			fn()
		}
	}
}

func (c *Controller) shutdown() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.cancelInFlight()

	c.mu.Lock()
	c.final = c.snapshot()
	c.mu.Unlock()

	c.logger.Debug().Msg("Controller stopped")
}

func (c *Controller) finalState() State {
	<-c.stopped
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final
}

func (c *Controller) snapshot() State {
	return newState(c.phase, c.query, c.page, c.items)
}

// debounce arms the pending-query timer, replacing any earlier one.
func (c *Controller) debounce(text string) {
	if c.config.Debounce < 0 {
		c.execute(text)
		return
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen

	// A timer that fired before Stop still posts; gen filters it out.
	c.timer = time.AfterFunc(c.config.Debounce, func() {
		c.post(func() {
			if gen != c.timerGen {
				return
			}
			c.timer = nil
			c.execute(text)
		})
	})
}

// execute resets the session and starts the first fetch for text.
func (c *Controller) execute(text string) {
	c.cancelInFlight()
	c.page = 1
	c.items = nil
	c.phase = PhaseIdle

	if n, ok := c.currentSink().(ClearNotifier); ok {
		n.ResultsCleared()
	}

	if strings.TrimSpace(text) == "" {
		c.query = ""
		queriesTotal.WithLabelValues("empty").Inc()
		c.logger.Debug().Msg("Empty query - results cleared")
		return
	}

	c.query = text
	queriesTotal.WithLabelValues("search").Inc()
	c.logger.Info().Str("query", text).Msg("Executing query")
	c.startFetch(PhaseFetching)
}

func (c *Controller) startFetch(next Phase) {
	c.token++
	token := c.token

	kind := kindMore
	if next == PhaseFetching {
		kind = kindFirst
	}

	req := flickr.Request{
		Text:    c.query,
		PerPage: c.config.PageSize,
		Page:    c.page,
	}

	c.phase = next
	c.logger.Debug().
		Str("query", req.Text).
		Int("page", req.Page).
		Int("per_page", req.PerPage).
		Uint64("token", token).
		Msg("Fetching page")

	c.inflight = c.fetcher.Fetch(req, func(page *photo.Page, err error) {
		c.post(func() { c.complete(token, kind, page, err) })
	})
}

func (c *Controller) cancelInFlight() {
	if c.inflight == nil {
		return
	}
	c.inflight.Cancel()
	c.inflight = nil
	// Invalidate any completion already queued for the cancelled fetch.
	c.token++
	fetchesTotal.WithLabelValues(kindOf(c.phase), "canceled").Inc()
}

func kindOf(p Phase) string {
	if p == PhaseFetching {
		return kindFirst
	}
	return kindMore
}

// complete applies the outcome of the fetch tagged with token.
func (c *Controller) complete(token uint64, kind string, page *photo.Page, err error) {
	if token != c.token || !c.phase.InFlight() {
		staleCallbacksTotal.Inc()
		c.logger.Debug().Uint64("token", token).Msg("Dropping stale fetch result")
		return
	}
	c.inflight = nil

	if err == nil && page == nil {
		err = flickr.ErrMalformedResponse
	}

	if err != nil {
		fetchesTotal.WithLabelValues(kind, "failed").Inc()
		c.logger.Warn().
			Err(err).
			Str("query", c.query).
			Int("page", c.page).
			Str("error_class", string(flickr.ClassOf(err))).
			Msg("Fetch failed")

		if c.phase == PhaseFetching {
			c.phase = PhaseIdle
			if sink := c.currentSink(); sink != nil {
				sink.Error(flickr.UserMessage(err))
			}
			return
		}

		c.phase = PhaseFetchMoreFailed
		if sink := c.currentSink(); sink != nil {
			sink.FetchMoreFailed()
		}
		return
	}

	fetchesTotal.WithLabelValues(kind, "success").Inc()

	items := photo.AdaptAll(page.Photos, c.config.Adapter)
	c.items = append(c.items, items...)
	c.page = page.Page + 1

	hasMore := page.HasMore()
	if hasMore {
		c.phase = PhaseHasMore
	} else {
		c.phase = PhaseLoaded
	}

	c.logger.Debug().
		Str("query", c.query).
		Int("page", page.Page).
		Int("pages", page.Pages).
		Int("items", len(items)).
		Str("phase", c.phase.String()).
		Msg("Page loaded")

	if sink := c.currentSink(); sink != nil {
		sink.ItemsAppended(items, hasMore)
	}
}

func (c *Controller) currentSink() EventSink {
	c.sinkMu.RLock()
	defer c.sinkMu.RUnlock()
	return c.sink
}
