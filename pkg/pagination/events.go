package pagination

import "github.com/Sternrassler/flickr-search/pkg/photo"

// EventSink receives the controller's events. Methods run on the
// controller's goroutine, one at a time, in the order the events occur.
// They may call back into the controller, except Snapshot and Close.
type EventSink interface {
	// ItemsAppended delivers the adapted items of one page.
	ItemsAppended(items []photo.Item, hasMore bool)

	// Error reports that the first page of a query failed.
	Error(message string)

	// FetchMoreFailed reports that a further page failed.
	FetchMoreFailed()
}

// ClearNotifier is implemented by sinks that want to know when a query
// executes and the result list is emptied, including for an empty query.
type ClearNotifier interface {
	ResultsCleared()
}

// SinkFuncs adapts plain functions to EventSink and ClearNotifier.
// Nil fields are skipped.
type SinkFuncs struct {
	OnItemsAppended   func(items []photo.Item, hasMore bool)
	OnError           func(message string)
	OnFetchMoreFailed func()
	OnResultsCleared  func()
}

func (s SinkFuncs) ItemsAppended(items []photo.Item, hasMore bool) {
	if s.OnItemsAppended != nil {
		s.OnItemsAppended(items, hasMore)
	}
}

func (s SinkFuncs) Error(message string) {
	if s.OnError != nil {
		s.OnError(message)
	}
}

func (s SinkFuncs) FetchMoreFailed() {
	if s.OnFetchMoreFailed != nil {
		s.OnFetchMoreFailed()
	}
}

func (s SinkFuncs) ResultsCleared() {
	if s.OnResultsCleared != nil {
		s.OnResultsCleared()
	}
}
