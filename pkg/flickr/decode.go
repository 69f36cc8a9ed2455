package flickr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sternrassler/flickr-search/pkg/photo"
)

// searchResponseSchema describes the parts of a flickr.photos.search body
// the client relies on. Record fields are type-checked but optional.
const searchResponseSchema = `{
  "type": "object",
  "required": ["photos"],
  "properties": {
    "photos": {
      "type": "object",
      "required": ["photo", "page", "pages", "total"],
      "properties": {
        "photo": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "id":     {"type": "string"},
              "secret": {"type": "string"},
              "server": {"type": "string"},
              "farm":   {"type": "integer"},
              "title":  {"type": "string"}
            }
          }
        },
        "page":  {"type": "integer", "minimum": 0},
        "pages": {"type": "integer", "minimum": 0},
        "total": {"type": ["integer", "string"], "pattern": "^[0-9]+$", "minimum": 0}
      }
    }
  }
}`

var responseSchema = mustCompileSchema(searchResponseSchema)

func mustCompileSchema(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("compile search response schema: %v", err))
	}
	return s
}

// status is the envelope shared by successful and failed REST answers.
type status struct {
	Stat    string `json:"stat"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// decodeSearchResponse parses body into a Page. A stat:"fail" answer becomes
// an *APIError; anything else that does not match the schema wraps
// ErrMalformedResponse.
func decodeSearchResponse(body []byte) (*photo.Page, error) {
	var st status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if st.Stat == "fail" {
		class := ErrorClassAPI
		if st.Code == codeServiceUnavailable {
			class = ErrorClassServer
		}
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Class:      class,
			Code:       st.Code,
			Message:    st.Message,
		}
	}

	result, err := responseSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(msgs, "; "))
	}

	var resp photo.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return resp.ToPage(), nil
}
