package flickr

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Sternrassler/flickr-search/pkg/photo"
)

// ErrClientClosed is delivered to fetches started after Close.
var ErrClientClosed = errors.New("flickr client closed")

// DoneFunc receives the outcome of an asynchronous fetch. Exactly one of
// page and err is non-nil. It runs on the fetch goroutine, is never called
// for a cancelled fetch and must not call Cancel on its own handle.
type DoneFunc func(page *photo.Page, err error)

// Handle is a cancellation handle for one in-flight fetch.
type Handle struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	canceled bool
	finished bool
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{
		id:     uuid.New(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the fetch in logs.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Cancel aborts the fetch. After Cancel returns the completion callback is
// neither running nor going to run: a callback that already started is
// waited for. Cancelling twice, or after completion, does nothing.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.canceled {
		h.mu.Unlock()
		return
	}
	if h.finished {
		h.mu.Unlock()
		<-h.done
		return
	}
	h.canceled = true
	h.mu.Unlock()

	h.cancel()
}

// Done is closed once the fetch goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// claim marks the fetch finished. It reports false if Cancel won the race.
func (h *Handle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return false
	}
	h.finished = true
	return true
}

// Fetch runs Search in the background and reports the outcome to done.
// It returns immediately.
func (c *Client) Fetch(r Request, done DoneFunc) *Handle {
	ctx, cancel := context.WithCancel(c.baseCtx)
	h := newHandle(cancel)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		go func() {
			defer close(h.done)
			if h.claim() && done != nil {
				done(nil, ErrClientClosed)
			}
		}()
		return h
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	logger := c.logger.With().Str("fetch_id", h.id.String()).Logger()
	logger.Debug().Str("text", r.Text).Int("page", r.Page).Msg("Fetch started")

	go func() {
		defer c.inflight.Done()
		defer close(h.done)
		defer cancel()

		page, err := c.Search(ctx, r)

		if !h.claim() || ctx.Err() != nil {
			logger.Debug().Msg("Fetch cancelled - dropping result")
			return
		}
		if done != nil {
			done(page, err)
		}
	}()

	return h
}
