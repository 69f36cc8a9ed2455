// Package photo holds the Flickr search data model: raw photo records as the
// API returns them, a parsed result page, and the display-ready Item the
// presentation layer renders.
package photo

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Photo is a single raw record from a flickr.photos.search response.
// Any field may be absent; Adapt decides what an absent field means.
type Photo struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Server string `json:"server"`
	Farm   *int   `json:"farm,omitempty"`
	Title  string `json:"title"`
}

// Page is one parsed page of search results.
type Page struct {
	Photos []Photo
	Page   int
	Pages  int
	Total  int
}

// HasMore reports whether the API has pages after this one.
func (p *Page) HasMore() bool {
	return p.Page < p.Pages
}

// Response mirrors the JSON body of a successful search call.
type Response struct {
	Photos struct {
		Photo []Photo `json:"photo"`
		Page  int     `json:"page"`
		Pages int     `json:"pages"`
		Total Count   `json:"total"`
	} `json:"photos"`
	Stat string `json:"stat"`
}

// ToPage converts the wire representation into a Page.
func (r *Response) ToPage() *Page {
	return &Page{
		Photos: r.Photos.Photo,
		Page:   r.Photos.Page,
		Pages:  r.Photos.Pages,
		Total:  int(r.Photos.Total),
	}
}

// Count decodes a JSON number that Flickr sometimes sends as a string
// ("total": "1234").
type Count int

// UnmarshalJSON accepts both 1234 and "1234".
func (c *Count) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Count(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("count must be a number or numeric string: %w", err)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parse count %q: %w", s, err)
	}
	*c = Count(n)
	return nil
}
