// Package imageresult models the loosely-typed output of an image-generation
// model and reduces it to a single byte buffer.
//
// A generated result is one of:
//   - a byte stream (KindBytes)
//   - a handle exposing a URL (KindURLHandle)
//   - a plain URL string (KindURLString)
//   - an ordered sequence of the above (KindSequence)
//
// Normalizer.Normalize resolves them in exactly that priority order.
package imageresult

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Kind tags the shape of a Result.
type Kind int

const (
	// KindUnknown is a shape the normalizer cannot use.
	KindUnknown Kind = iota
	// KindBytes carries a readable byte stream.
	KindBytes
	// KindURLHandle carries a value that can report a URL.
	KindURLHandle
	// KindURLString is a bare URL.
	KindURLString
	// KindSequence is an ordered list of results; only the first is used.
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindURLHandle:
		return "url_handle"
	case KindURLString:
		return "url_string"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Locator is anything that can report where its content lives.
type Locator interface {
	URL() string
}

// Result is a generated image in whatever shape the remote service returned it.
// The zero value is KindUnknown.
type Result struct {
	kind    Kind
	reader  io.Reader
	locator Locator
	url     string
	items   []Result
}

// FromReader wraps a byte stream.
func FromReader(r io.Reader) Result {
	return Result{kind: KindBytes, reader: r}
}

// FromBytes wraps an in-memory buffer as a byte stream.
func FromBytes(b []byte) Result {
	return FromReader(bytes.NewReader(b))
}

// FromLocator wraps a URL-bearing handle.
func FromLocator(l Locator) Result {
	return Result{kind: KindURLHandle, locator: l}
}

// FromURL wraps a plain URL string.
func FromURL(u string) Result {
	return Result{kind: KindURLString, url: u}
}

// FromSequence wraps an ordered list of results.
func FromSequence(items ...Result) Result {
	return Result{kind: KindSequence, items: items}
}

// Kind returns the shape tag.
func (r Result) Kind() Kind { return r.kind }

// Len returns the number of elements of a sequence, or 1 for any other known shape.
func (r Result) Len() int {
	switch r.kind {
	case KindSequence:
		return len(r.items)
	case KindUnknown:
		return 0
	default:
		return 1
	}
}

// fileOutput is a JSON object carrying the generated file location.
type fileOutput struct {
	Href string `json:"url"`
}

func (f fileOutput) URL() string { return f.Href }

// FromJSON decodes the output field of a prediction. Data URIs become byte
// streams, other strings become URLs, objects with a "url" field become URL
// handles and arrays become sequences. Any other JSON value yields KindUnknown.
func FromJSON(raw json.RawMessage) (Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Result{}, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Result{}, fmt.Errorf("failed to decode output string: %w", err)
		}
		if strings.HasPrefix(s, "data:") {
			data, err := DecodeDataURI(s)
			if err != nil {
				return Result{}, err
			}
			return FromBytes(data), nil
		}
		return FromURL(s), nil

	case '{':
		var obj fileOutput
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Result{}, fmt.Errorf("failed to decode output object: %w", err)
		}
		if obj.Href == "" {
			return Result{}, nil
		}
		return FromLocator(obj), nil

	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return Result{}, fmt.Errorf("failed to decode output list: %w", err)
		}
		// Only the first element is ever normalized; later elements that do
		// not decode are kept as KindUnknown.
		items := make([]Result, 0, len(elems))
		for i, elem := range elems {
			item, err := FromJSON(elem)
			if err != nil {
				if i == 0 {
					return Result{}, fmt.Errorf("output[0]: %w", err)
				}
				log.Debug().Err(err).Int("index", i).Msg("Ignoring undecodable output element")
				item = Result{}
			}
			items = append(items, item)
		}
		return FromSequence(items...), nil
	}

	return Result{}, nil
}

// DecodeDataURI returns the payload of a base64 data URI such as
// "data:image/png;base64,iVBOR...".
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI: missing comma")
	}
	if !strings.HasSuffix(meta, ";base64") {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("malformed data URI: %w", err)
		}
		return []byte(decoded), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	return data, nil
}

// EncodeDataURI builds a base64 data URI for data with the given MIME type.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
