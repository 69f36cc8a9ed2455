package pagination

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/flickr-search/pkg/flickr"
	"github.com/Sternrassler/flickr-search/pkg/photo"
)

// fakeCall is one recorded Fetch. Completing a cancelled call is dropped,
// like flickr.Handle does.
type fakeCall struct {
	req  flickr.Request
	done flickr.DoneFunc
	f    *fakeFetcher

	mu       sync.Mutex
	canceled bool
	finished bool
}

func (c *fakeCall) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.canceled || c.finished {
		return
	}
	c.canceled = true
	c.f.release()
}

func (c *fakeCall) isCanceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

func (c *fakeCall) finish(page *photo.Page, err error) {
	c.mu.Lock()
	if c.canceled || c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.f.release()
	c.mu.Unlock()

	c.done(page, err)
}

func (c *fakeCall) succeed(page *photo.Page) { c.finish(page, nil) }

func (c *fakeCall) fail(err error) { c.finish(nil, err) }

// deliverLate invokes the completion even though the call was cancelled,
// as a transport that ignores cancellation would.
func (c *fakeCall) deliverLate(page *photo.Page) { c.done(page, nil) }

// fakeFetcher records calls and tracks how many are outstanding.
// With auto set, each call completes on its own goroutine.
type fakeFetcher struct {
	mu          sync.Mutex
	calls       []*fakeCall
	inflight    int
	maxInflight int

	auto  func(req flickr.Request) (*photo.Page, error)
	delay time.Duration
	wg    sync.WaitGroup
}

func (f *fakeFetcher) Fetch(req flickr.Request, done flickr.DoneFunc) Canceler {
	call := &fakeCall{req: req, done: done, f: f}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	auto := f.auto
	f.mu.Unlock()

	if auto != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			time.Sleep(f.delay)
			call.finish(auto(req))
		}()
	}

	return call
}

func (f *fakeFetcher) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) max() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

// call waits for the n-th (1-based) Fetch and returns it.
func (f *fakeFetcher) call(t *testing.T, n int) *fakeCall {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() >= n }, 2*time.Second, time.Millisecond,
		"expected fetch #%d", n)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[n-1]
}

func intPtr(n int) *int { return &n }

// makePage builds page `page` of `pages` holding n records.
func makePage(page, pages, n int) *photo.Page {
	photos := make([]photo.Photo, n)
	for i := range photos {
		id := fmt.Sprintf("%d-%d", page, i+1)
		photos[i] = photo.Photo{
			ID:     id,
			Secret: "s" + id,
			Server: "7",
			Farm:   intPtr(1),
			Title:  "photo " + id,
		}
	}
	return &photo.Page{Photos: photos, Page: page, Pages: pages, Total: pages * n}
}

type event struct {
	kind    string
	items   []photo.Item
	hasMore bool
	message string
}

const (
	evAppended = "items_appended"
	evError    = "error"
	evMore     = "fetch_more_failed"
	evCleared  = "results_cleared"
)

// recorder is an EventSink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ItemsAppended(items []photo.Item, hasMore bool) {
	r.add(event{kind: evAppended, items: items, hasMore: hasMore})
}

func (r *recorder) Error(message string) { r.add(event{kind: evError, message: message}) }

func (r *recorder) FetchMoreFailed() { r.add(event{kind: evMore}) }

func (r *recorder) ResultsCleared() { r.add(event{kind: evCleared}) }

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event, len(r.events))
	copy(out, r.events)
	return out
}

// core drops ResultsCleared events.
func (r *recorder) core() []event {
	var out []event
	for _, e := range r.all() {
		if e.kind != evCleared {
			out = append(out, e)
		}
	}
	return out
}

// waitCore waits until n core events have been recorded.
func (r *recorder) waitCore(t *testing.T, n int) []event {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.core()) >= n }, 2*time.Second, time.Millisecond,
		"expected %d events", n)
	return r.core()
}
