package photo

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Item is the display-ready shape of a photo: a title and an optional image URL.
type Item struct {
	Title    string
	ImageURL *url.URL
}

// itemJSON is the wire form used by the search proxy.
type itemJSON struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url,omitempty"`
}

// MarshalJSON renders ImageURL as a plain string and omits it when absent.
func (i Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{Title: i.Title}
	if i.ImageURL != nil {
		out.ImageURL = i.ImageURL.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (i *Item) UnmarshalJSON(data []byte) error {
	var in itemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	i.Title = in.Title
	i.ImageURL = nil
	if in.ImageURL != "" {
		u, err := url.Parse(in.ImageURL)
		if err != nil {
			return fmt.Errorf("parse image_url: %w", err)
		}
		i.ImageURL = u
	}
	return nil
}

// Adapter maps a raw record to an Item.
type Adapter func(Photo) Item

// Adapt builds the display item for p. The image URL follows Flickr's static
// farm template and is left nil when farm, server, id or secret is missing.
func Adapt(p Photo) Item {
	return Item{
		Title:    p.Title,
		ImageURL: ImageURL(p),
	}
}

// AdaptAll maps every record with adapt, preserving order. A nil adapt means Adapt.
func AdaptAll(photos []Photo, adapt Adapter) []Item {
	if adapt == nil {
		adapt = Adapt
	}
	items := make([]Item, len(photos))
	for i, p := range photos {
		items[i] = adapt(p)
	}
	return items
}

// ImageURL returns the medium-size (_m) static image URL of p, or nil.
func ImageURL(p Photo) *url.URL {
	if p.Farm == nil || p.Server == "" || p.ID == "" || p.Secret == "" {
		return nil
	}
	u, err := url.Parse(fmt.Sprintf("https://farm%d.staticflickr.com/%s/%s_%s_m.jpg",
		*p.Farm, p.Server, p.ID, p.Secret))
	if err != nil {
		return nil
	}
	return u
}
