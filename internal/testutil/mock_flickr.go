// Package testutil provides testing utilities for the Flickr search client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// RESTPath is the path the mock serves the REST API on.
const RESTPath = "/services/rest/"

// MockResponse defines a canned response served instead of a generated page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockFlickr is a configurable mock of the flickr.photos.search endpoint.
// Without queued responses it generates deterministic pages.
type MockFlickr struct {
	server *httptest.Server

	mu        sync.RWMutex
	pages     int
	delay     time.Duration
	queue     []MockResponse
	requests  int
	lastQuery url.Values
}

// NewMockFlickr creates a new mock server reporting three pages per query.
func NewMockFlickr() *MockFlickr {
	mock := &MockFlickr{pages: 3}
	mux := http.NewServeMux()
	mux.HandleFunc(RESTPath, mock.handle)
	mock.server = httptest.NewServer(mux)
	return mock
}

// URL returns the REST endpoint of the mock server.
func (m *MockFlickr) URL() string {
	return m.server.URL + RESTPath
}

// Close shuts down the mock server.
func (m *MockFlickr) Close() {
	m.server.Close()
}

// Reset clears tracking counters and queued responses.
func (m *MockFlickr) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = 0
	m.lastQuery = nil
	m.queue = nil
}

// SetPages sets the page count reported for every query.
func (m *MockFlickr) SetPages(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = n
}

// SetDelay delays every generated page by d.
func (m *MockFlickr) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Enqueue queues responses served, in order, before generated pages resume.
func (m *MockFlickr) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockFlickr) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockFlickr) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func (m *MockFlickr) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests++
	m.lastQuery = r.URL.Query()
	var queued *MockResponse
	if len(m.queue) > 0 {
		queued = &m.queue[0]
		m.queue = m.queue[1:]
	}
	pages := m.pages
	delay := m.delay
	m.mu.Unlock()

	if queued != nil {
		writeResponse(w, r, *queued)
		return
	}

	q := r.URL.Query()
	resp := MockResponse{StatusCode: http.StatusOK, Delay: delay}
	switch {
	case q.Get("method") != "flickr.photos.search":
		resp.Body = FailBody(112, fmt.Sprintf("Method %q not found", q.Get("method")))
	case q.Get("api_key") == "":
		resp.Body = FailBody(100, "Invalid API Key (Key has invalid format)")
	default:
		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("per_page"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 {
			perPage = 100
		}
		resp.Body = PageBody(q.Get("text"), page, pages, perPage)
	}
	writeResponse(w, r, resp)
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

type mockPhoto struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Server string `json:"server"`
	Farm   int    `json:"farm"`
	Title  string `json:"title"`
}

// PageBody renders a successful search body. Photo n (1-based across all
// pages) has id "n" and title "<text> n". The last page may be short.
func PageBody(text string, page, pages, perPage int) string {
	total := pages * perPage
	if pages > 0 {
		total -= perPage / 2
	}

	photos := []mockPhoto{}
	if page <= pages {
		first := (page-1)*perPage + 1
		last := first + perPage - 1
		if last > total {
			last = total
		}
		for n := first; n <= last; n++ {
			photos = append(photos, mockPhoto{
				ID:     strconv.Itoa(n),
				Secret: fmt.Sprintf("s%d", n),
				Server: "65535",
				Farm:   66,
				Title:  fmt.Sprintf("%s %d", text, n),
			})
		}
	}

	body := map[string]any{
		"photos": map[string]any{
			"page":    page,
			"pages":   pages,
			"perpage": perPage,
			"total":   strconv.Itoa(total),
			"photo":   photos,
		},
		"stat": "ok",
	}
	data, _ := json.Marshal(body)
	return string(data)
}

// FailBody renders a stat:"fail" body.
func FailBody(code int, message string) string {
	data, _ := json.Marshal(map[string]any{
		"stat":    "fail",
		"code":    code,
		"message": message,
	})
	return string(data)
}

// NewPageResponse creates a 200 OK response with a generated page.
func NewPageResponse(text string, page, pages, perPage int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       PageBody(text, page, pages, perPage),
	}
}

// NewFailResponse creates a 200 OK response carrying a stat:"fail" body.
func NewFailResponse(code int, message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       FailBody(code, message),
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewMalformedResponse creates a 200 OK response that is not valid JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `jsonFlickrApi({"stat":"ok"})`,
	}
}
