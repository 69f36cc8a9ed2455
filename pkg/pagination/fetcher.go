package pagination

import "github.com/Sternrassler/flickr-search/pkg/flickr"

// Canceler aborts an in-flight fetch. Cancel must be idempotent, and after
// it returns the fetch's completion must not be delivered.
type Canceler interface {
	Cancel()
}

// Fetcher issues one asynchronous page fetch and returns immediately.
type Fetcher interface {
	Fetch(req flickr.Request, done flickr.DoneFunc) Canceler
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(req flickr.Request, done flickr.DoneFunc) Canceler

// Fetch calls f.
func (f FetcherFunc) Fetch(req flickr.Request, done flickr.DoneFunc) Canceler {
	return f(req, done)
}

// ClientFetcher fetches pages with a flickr.Client.
type ClientFetcher struct {
	Client *flickr.Client
}

// Fetch starts an asynchronous search.
func (f ClientFetcher) Fetch(req flickr.Request, done flickr.DoneFunc) Canceler {
	return f.Client.Fetch(req, done)
}
