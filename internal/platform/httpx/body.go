package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Body decoding failures.
var (
	ErrEmptyBody        = errors.New("request body is required")
	ErrBodyTooLarge     = errors.New("request body exceeds allowed size")
	ErrUnsupportedMedia = errors.New("content type must be application/json")
	ErrMalformedJSON    = errors.New("invalid JSON payload")
)

// DecodeJSON reads at most limit bytes of r's body into dst. A missing Content-Type is
// accepted; any other media type than application/json is not.
func DecodeJSON(r *http.Request, limit int64, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return ErrUnsupportedMedia
		}
	}
	if r.Body == nil {
		return ErrEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return ErrBodyTooLarge
	}
	if strings.TrimSpace(string(data)) == "" {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// DecodeError maps a DecodeJSON failure to its envelope.
func DecodeError(err error) Error {
	switch {
	case errors.Is(err, ErrUnsupportedMedia):
		return NewError("unsupported_media_type", ErrUnsupportedMedia.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, ErrBodyTooLarge):
		return NewError("payload_too_large", ErrBodyTooLarge.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrEmptyBody):
		return BadRequest(ErrEmptyBody.Error())
	case errors.Is(err, ErrMalformedJSON):
		return BadRequest(ErrMalformedJSON.Error())
	default:
		return BadRequest("unable to read request body")
	}
}
