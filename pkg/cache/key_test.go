package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "method only",
			key:  Key{Method: "flickr.photos.search"},
			want: "flickr:flickr.photos.search",
		},
		{
			name: "search params sorted",
			key: Key{
				Method: "flickr.photos.search",
				Params: url.Values{
					"text":     []string{"cat"},
					"page":     []string{"1"},
					"per_page": []string{"10"},
				},
			},
			want: "flickr:flickr.photos.search:page=1:per_page=10:text=cat",
		},
		{
			name: "credentials and format params excluded",
			key: Key{
				Method: "flickr.photos.search",
				Params: url.Values{
					"api_key":        []string{"secret"},
					"format":         []string{"json"},
					"nojsoncallback": []string{"1"},
					"method":         []string{"flickr.photos.search"},
					"text":           []string{"dog"},
				},
			},
			want: "flickr:flickr.photos.search:text=dog",
		},
		{
			name: "text is escaped",
			key: Key{
				Method: "flickr.photos.search",
				Params: url.Values{"text": []string{"red:car blue"}},
			},
			want: "flickr:flickr.photos.search:text=red%3Acar+blue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyFromURL(t *testing.T) {
	u, err := url.Parse("https://api.flickr.com/services/rest/?method=flickr.photos.search&api_key=k&text=cat&page=2&per_page=10&format=json&nojsoncallback=1")
	if err != nil {
		t.Fatal(err)
	}

	key := KeyFromURL(u)
	if key.Method != "flickr.photos.search" {
		t.Errorf("Method = %q", key.Method)
	}
	want := "flickr:flickr.photos.search:page=2:per_page=10:text=cat"
	if got := key.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// TestKey_Determinism ensures same input always produces same key
func TestKey_Determinism(t *testing.T) {
	key := Key{
		Method: "flickr.photos.search",
		Params: url.Values{
			"text":     []string{"mountain lake"},
			"page":     []string{"4"},
			"per_page": []string{"10"},
		},
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Errorf("iteration %d = %v, want %v (not deterministic)", i, got, first)
		}
	}
}
