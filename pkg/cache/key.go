package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Query parameters that never become part of a cache key.
var ignoredParams = map[string]bool{
	"api_key":        true,
	"format":         true,
	"nojsoncallback": true,
}

// Key identifies a cached Flickr REST response.
type Key struct {
	// Method is the REST method name (e.g., "flickr.photos.search")
	Method string

	// Params are the request query parameters. Credentials and fixed
	// format parameters are ignored.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: flickr:method:param1=val1:param2=val2
//
// Example:
//
//	flickr:flickr.photos.search:page=1:per_page=10:text=cat
func (k Key) String() string {
	parts := []string{"flickr"}

	if method := strings.TrimSpace(k.Method); method != "" {
		parts = append(parts, method)
	}

	keys := make([]string, 0, len(k.Params))
	for key := range k.Params {
		if key == "method" || ignoredParams[key] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, url.QueryEscape(k.Params.Get(key))))
	}

	return strings.Join(parts, ":")
}

// KeyFromURL builds a Key from a request URL, taking the method from the
// "method" query parameter.
func KeyFromURL(u *url.URL) Key {
	q := u.Query()
	return Key{
		Method: q.Get("method"),
		Params: q,
	}
}
