// Package models defines the domain types for inkwell.
package models

import (
	"bytes"
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/inkwell/internal/slug"
)

// DateLayout is the D-M-YYYY stamp written on every save (no leading zeros).
const DateLayout = "2-1-2006"

// Blog is one blog post. The same shape is stored in blogs/{slug}.json and
// as an element of the blogs.json index.
type Blog struct {
	Slug             string `json:"slug"`
	Title            string `json:"title"`
	ShortDescription string `json:"shortDescription,omitempty"`
	Content          string `json:"content"`
	Image            string `json:"image"`
	Date             string `json:"date,omitempty"`
}

// Validate checks the fields every stored blog must carry.
func (b *Blog) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.Slug, validation.Required, validation.By(validSlug)),
		validation.Field(&b.Title, validation.Required),
		validation.Field(&b.Content, validation.Required),
	)
}

// Stamp sets Date from t.
func (b *Blog) Stamp(t time.Time) {
	b.Date = t.Format(DateLayout)
}

func validSlug(v any) error {
	s, _ := v.(string)
	if s != "" && !slug.Valid(s) {
		return validation.NewError("validation_slug", "must contain only letters, digits, '-' or '_'")
	}
	return nil
}

// Encode serializes v as compact JSON without escaping HTML, so rich-text
// content is stored the way the editor produced it.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
