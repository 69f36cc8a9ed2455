package flickr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SearchMethod is the Flickr REST method used for keyword search.
const SearchMethod = "flickr.photos.search"

// Request is one page of a keyword search.
type Request struct {
	Text    string
	PerPage int
	Page    int
}

// Validate checks that the request can be sent.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Text) == "":
		return fmt.Errorf("%w: text is empty", ErrInvalidRequest)
	case r.PerPage <= 0:
		return fmt.Errorf("%w: per_page must be > 0 (got %d)", ErrInvalidRequest, r.PerPage)
	case r.Page < 1:
		return fmt.Errorf("%w: page must be >= 1 (got %d)", ErrInvalidRequest, r.Page)
	}
	return nil
}

// buildURL returns the GET URL for r. The result only depends on the
// endpoint, the key and the three request fields.
func buildURL(endpoint *url.URL, apiKey string, r Request) *url.URL {
	q := url.Values{}
	q.Set("method", SearchMethod)
	q.Set("api_key", apiKey)
	q.Set("text", r.Text)
	q.Set("format", "json")
	q.Set("nojsoncallback", "1")
	q.Set("per_page", strconv.Itoa(r.PerPage))
	q.Set("page", strconv.Itoa(r.Page))

	u := *endpoint
	u.RawQuery = q.Encode()
	return &u
}
