package productform

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// Preview is the display-only projection of a selected image.
type Preview struct {
	FileID  uuid.UUID `json:"-"`
	Label   string    `json:"label"`
	URL     string    `json:"url,omitempty"`
	Pending bool      `json:"pending,omitempty"`
	Failed  string    `json:"failed,omitempty"`
}

// Previewer renders a preview for an accepted image. Implementations are
// called from their own goroutine, one call per file.
type Previewer interface {
	Preview(ctx context.Context, img ImageFile) (Preview, error)
}

// PreviewerFunc adapts a function to the Previewer interface.
type PreviewerFunc func(ctx context.Context, img ImageFile) (Preview, error)

// Preview calls f.
func (f PreviewerFunc) Preview(ctx context.Context, img ImageFile) (Preview, error) {
	return f(ctx, img)
}

// ThumbnailPreviewer downscales the image so its longest edge is at most
// MaxEdge pixels and returns it as a JPEG data URL.
type ThumbnailPreviewer struct {
	MaxEdge int
	Quality int
}

// NewThumbnailPreviewer returns a ThumbnailPreviewer with the given edge
// limit, falling back to 256 pixels.
func NewThumbnailPreviewer(maxEdge int) *ThumbnailPreviewer {
	if maxEdge <= 0 {
		maxEdge = 256
	}
	return &ThumbnailPreviewer{MaxEdge: maxEdge, Quality: 80}
}

// Preview implements Previewer.
func (p *ThumbnailPreviewer) Preview(ctx context.Context, img ImageFile) (Preview, error) {
	if err := ctx.Err(); err != nil {
		return Preview{}, err
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return Preview{}, errors.Wrapf(err, "decode %s", img.Name)
	}

	bounds := src.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), p.MaxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	if err := ctx.Err(); err != nil {
		return Preview{}, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.Quality}); err != nil {
		return Preview{}, errors.Wrapf(err, "encode thumbnail for %s", img.Name)
	}

	return Preview{
		FileID: img.ID,
		Label:  img.Name,
		URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// fitWithin scales w×h down so neither side exceeds edge, keeping the aspect
// ratio. Images already small enough are left as is.
func fitWithin(w, h, edge int) (int, int) {
	if w <= edge && h <= edge {
		return max(w, 1), max(h, 1)
	}
	if w >= h {
		return edge, max(h*edge/w, 1)
	}
	return max(w*edge/h, 1), edge
}
