// Package dataurl decodes the inline image data URIs the editor produces
// before they are externalized to the repository.
package dataurl

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"
	"strings"

	_ "golang.org/x/image/webp" // register decoder
)

const imagePrefix = "data:image"

// Image is a decoded data URI payload.
type Image struct {
	MediaType string // e.g. "image/png"
	// Format is the format recognised in Data ("png", "jpeg", "gif", "webp",
	// "svg"), or empty when none of the registered decoders knows it.
	Format string
	Data   []byte
}

// IsImage reports whether s is an inline image data URI.
func IsImage(s string) bool {
	return strings.HasPrefix(s, imagePrefix)
}

// Decode parses a data:image/...;base64,<payload> URI. Only the envelope and
// the base64 payload are checked; any image format is accepted.
func Decode(uri string) (*Image, error) {
	if !IsImage(uri) {
		return nil, errors.New("dataurl: not an image data URI")
	}
	rest := strings.TrimPrefix(uri, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.New("dataurl: missing comma separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("dataurl: only base64 payloads are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("dataurl: invalid base64 payload: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, errors.New("dataurl: empty payload")
	}

	mediaType := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return &Image{MediaType: mediaType, Format: sniff(mediaType, data), Data: data}, nil
}

// Verify reports an error unless the payload is in a recognised format.
func (img *Image) Verify() error {
	if img.Format == "" {
		return fmt.Errorf("dataurl: payload is not a supported image (%s)", img.MediaType)
	}
	return nil
}

func sniff(mediaType string, data []byte) string {
	if mediaType == "image/svg+xml" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if bytes.Contains(prefix, []byte("<svg")) {
			return "svg"
		}
		return ""
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return format
}

// Encode builds a base64 data URI. An empty or non-image media type is
// replaced by the one sniffed from data.
func Encode(mediaType string, data []byte) string {
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}
	mediaType, _, _ = strings.Cut(mediaType, ";")
	return "data:" + strings.TrimSpace(mediaType) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
