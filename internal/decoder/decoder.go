// Package decoder turns raw handwritten-note files into ordered pages of
// recognized text and rendered images.
package decoder

import (
	"context"
	"image"
)

// Page is one decoded page of a note.
type Page interface {
	// Paragraphs returns the recognized text reflowed into paragraphs.
	Paragraphs() string
	// Text returns the raw recognized text.
	Text() string
	// Image renders the page.
	Image() (image.Image, error)
}

// Decoder parses a note file. Implementations wrap failures in apperr.ErrDecode.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]Page, error)
}

// Func adapts a plain function to Decoder.
type Func func(ctx context.Context, data []byte) ([]Page, error)

func (f Func) Decode(ctx context.Context, data []byte) ([]Page, error) { return f(ctx, data) }

// MemPage is a Page held entirely in memory.
type MemPage struct {
	ParagraphText string
	RawText       string
	Img           image.Image
	ImgErr        error
}

func (p MemPage) Paragraphs() string { return p.ParagraphText }
func (p MemPage) Text() string       { return p.RawText }

func (p MemPage) Image() (image.Image, error) {
	if p.ImgErr != nil {
		return nil, p.ImgErr
	}
	return p.Img, nil
}
