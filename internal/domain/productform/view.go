package productform

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

// View is an immutable snapshot of a form, suitable for presentation.
type View struct {
	ID            string           `json:"id"`
	State         State            `json:"state"`
	Submitting    bool             `json:"submitting"`
	Values        map[Field]string `json:"values"`
	Sizes         []product.Size   `json:"sizes"`
	Images        []ImageView      `json:"images"`
	Errors        map[Field]string `json:"errors,omitempty"`
	ImageError    string           `json:"imageError,omitempty"`
	Notifications []Notification   `json:"notifications,omitempty"`
}

// ImageView describes one selected image. The first image is the primary one.
type ImageView struct {
	Index       int       `json:"index"`
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Primary     bool      `json:"primary"`
	Preview     Preview   `json:"preview"`
}

// Render returns a snapshot of the current state. It has no side effects.
func (f *Form) Render() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	images := make([]ImageView, len(f.images))
	for i, img := range f.images {
		images[i] = ImageView{
			Index:       i,
			ID:          img.ID,
			Name:        img.Name,
			ContentType: img.ContentType,
			Size:        img.Size,
			Primary:     i == 0,
			Preview:     f.previews[img.ID],
		}
	}

	return View{
		ID:            f.id,
		State:         f.state,
		Submitting:    f.state == StateSubmitting,
		Values:        maps.Clone(f.values),
		Sizes:         slices.Clone(f.sizes),
		Images:        images,
		Errors:        maps.Clone(f.fieldErrors),
		ImageError:    f.imageError,
		Notifications: slices.Clone(f.notifications),
	}
}
