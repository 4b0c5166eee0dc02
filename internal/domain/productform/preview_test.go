package productform

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnailPreviewer(t *testing.T) {
	p := NewThumbnailPreviewer(64)
	img := ImageFile{ID: uuid.New(), Name: "wide.png", Data: encodePNG(t, 320, 160)}

	got, err := p.Preview(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.FileID)
	assert.Equal(t, "wide.png", got.Label)

	const prefix = "data:image/jpeg;base64,"
	require.True(t, strings.HasPrefix(got.URL, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got.URL, prefix))
	require.NoError(t, err)
	thumb, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 64, thumb.Bounds().Dx())
	assert.Equal(t, 32, thumb.Bounds().Dy())
}

func TestThumbnailPreviewer_Errors(t *testing.T) {
	p := NewThumbnailPreviewer(0)
	assert.Equal(t, 256, p.MaxEdge)

	_, err := p.Preview(context.Background(), ImageFile{Name: "broken.png", Data: pngBytes(64)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Preview(ctx, ImageFile{Name: "ok.png", Data: encodePNG(t, 8, 8)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, edge int
		wantW      int
		wantH      int
	}{
		{w: 100, h: 50, edge: 256, wantW: 100, wantH: 50},
		{w: 512, h: 256, edge: 256, wantW: 256, wantH: 128},
		{w: 256, h: 1024, edge: 256, wantW: 64, wantH: 256},
		{w: 4000, h: 1, edge: 256, wantW: 256, wantH: 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, tt.edge)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}
