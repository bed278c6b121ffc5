package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/danielokafor/smartvault/internal/core"
)

// Strategy is one way of turning raw file bytes into text. The strategy is
// chosen purely from the declared media type, never by sniffing the bytes.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, data []byte) (string, error)
}

// ForMediaType picks the extraction strategy for a declared media type:
// anything mentioning pdf goes through PDF text extraction, image/* goes
// through OCR, everything else is decoded as UTF-8 text.
func ForMediaType(mediaType string) Strategy {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.Contains(mt, "pdf"):
		return pdfStrategy{}
	case strings.HasPrefix(mt, "image/"):
		return ocrStrategy{mediaType: mt}
	default:
		return rawStrategy{}
	}
}

type pdfStrategy struct{}

func (pdfStrategy) Name() string { return "pdf" }

func (pdfStrategy) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return "", fmt.Errorf("pdf extract: %w", err)
	}
	return res.Body, nil
}

type ocrStrategy struct {
	mediaType string
}

func (ocrStrategy) Name() string { return "ocr" }

func (s ocrStrategy) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := docconv.Convert(bytes.NewReader(data), s.mediaType, false)
	if err != nil {
		return "", fmt.Errorf("ocr extract: %w", err)
	}
	return res.Body, nil
}

type rawStrategy struct{}

func (rawStrategy) Name() string { return "raw" }

func (rawStrategy) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// DocExtractor implements core.TextExtractor by dispatching on media type.
type DocExtractor struct{}

func NewDocExtractor() *DocExtractor {
	return &DocExtractor{}
}

func (e *DocExtractor) Extract(ctx context.Context, data []byte, mediaType string) (string, error) {
	return ForMediaType(mediaType).Extract(ctx, data)
}

var _ core.TextExtractor = (*DocExtractor)(nil)
