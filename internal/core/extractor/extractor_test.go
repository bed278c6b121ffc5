package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForMediaType(t *testing.T) {
	tests := []struct {
		mediaType string
		want      string
	}{
		{"application/pdf", "pdf"},
		{"application/x-pdf", "pdf"},
		{"APPLICATION/PDF", "pdf"},
		{"image/png", "ocr"},
		{"image/jpeg", "ocr"},
		{"image/tiff", "ocr"},
		{"text/plain", "raw"},
		{"application/octet-stream", "raw"},
		{"application/json", "raw"},
		{"", "raw"},
	}
	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			assert.Equal(t, tt.want, ForMediaType(tt.mediaType).Name())
		})
	}
}

func TestRawStrategy_ValidUTF8(t *testing.T) {
	out, err := rawStrategy{}.Extract(context.Background(), []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRawStrategy_InvalidBytesSanitized(t *testing.T) {
	out, err := rawStrategy{}.Extract(context.Background(), []byte{'o', 'k', 0xff, 0xfe})
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.True(t, len(out) > 2)
}

func TestStrategy_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rawStrategy{}.Extract(ctx, []byte("data"))
	assert.Error(t, err)
	_, err = pdfStrategy{}.Extract(ctx, []byte("%PDF-1.4"))
	assert.Error(t, err)
}
