// Package pagination drives an incremental keyword search over Flickr.
//
// A Controller owns one search session: the active query, the next page to
// fetch, the accumulated result list and a single explicit Phase. A
// presentation layer feeds it user intent and renders the events it emits:
//
//	ctrl := pagination.New(pagination.ClientFetcher{Client: client}, pagination.DefaultConfig())
//	defer ctrl.Close()
//
//	ctrl.SetSink(pagination.SinkFuncs{
//		OnItemsAppended:   func(items []photo.Item, hasMore bool) { /* render */ },
//		OnError:           func(msg string) { /* alert */ },
//		OnFetchMoreFailed: func() { /* show retry cell */ },
//	})
//
//	ctrl.SubmitQuery("sunset") // debounced
//	ctrl.RequestMore()         // user reached the end of the grid
//	ctrl.RetryMore()           // user tapped retry
//
// The controller:
//   - Debounces SubmitQuery with one pending timer (default 300ms)
//   - Keeps at most one fetch in flight and cancels it on a new query
//   - Drops completions of superseded fetches by request token
//   - Reports first-page failures as Error and later ones as FetchMoreFailed
//
// All state lives on one goroutine per controller. Public methods only post
// work to it, so they never block and may be called from event callbacks.
//
// Phases of a query session:
//
//	Idle -> Fetching -> Loaded (terminal)
//	                 -> HasMore -> FetchingMore -> HasMore | Loaded
//	                                            -> FetchMoreFailed -> (retry) FetchingMore
//	Fetching (failed) -> Idle
package pagination
