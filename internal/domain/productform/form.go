package productform

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

// State is the submission state of a form.
type State string

const (
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
)

// SubmitFunc persists a finished draft. It is called at most once per
// successful Submit and never concurrently for the same form.
type SubmitFunc func(ctx context.Context, d Draft) (*product.Product, error)

// Option configures a Form.
type Option func(*Form)

// WithID sets the form identifier reported by Render.
func WithID(id string) Option {
	return func(f *Form) { f.id = id }
}

// WithSchema replaces the default validation schema.
func WithSchema(s *Schema) Option {
	return func(f *Form) { f.schema = s }
}

// WithPreviewer replaces the default thumbnail previewer.
func WithPreviewer(p Previewer) Option {
	return func(f *Form) { f.previewer = p }
}

// WithNotifier forwards notifications to n in addition to keeping them on
// the form.
func WithNotifier(n Notifier) Option {
	return func(f *Form) { f.notifier = n }
}

// WithClock overrides the clock used to stamp notifications.
func WithClock(now func() time.Time) Option {
	return func(f *Form) { f.now = now }
}

// Form is the state container of one product draft. All mutations go through
// its methods; it is safe for concurrent use.
type Form struct {
	id        string
	schema    *Schema
	submit    SubmitFunc
	previewer Previewer
	notifier  Notifier
	now       func() time.Time

	mu            sync.Mutex
	values        map[Field]string
	fieldErrors   map[Field]string
	sizes         []product.Size
	images        []ImageFile
	previews      map[uuid.UUID]Preview
	imageError    string
	state         State
	generation    uint64
	notifications []Notification
	closed        bool

	// Preview workers run under workCtx and are tracked by workers.
	workCtx    context.Context
	cancelWork context.CancelFunc
	workers    sync.WaitGroup
}

// New creates an empty form that hands finished drafts to submit.
func New(submit SubmitFunc, opts ...Option) *Form {
	workCtx, cancel := context.WithCancel(context.Background())
	f := &Form{
		id:          uuid.New().String(),
		schema:      DefaultSchema(),
		submit:      submit,
		previewer:   NewThumbnailPreviewer(0),
		now:         time.Now,
		values:      make(map[Field]string),
		fieldErrors: make(map[Field]string),
		previews:    make(map[uuid.UUID]Preview),
		state:       StateEditing,
		workCtx:     workCtx,
		cancelWork:  cancel,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID returns the form identifier.
func (f *Form) ID() string {
	return f.id
}

// editableLocked reports whether the draft may be changed. Edits made while a
// submission is outstanding would be lost when the draft resets.
func (f *Form) editableLocked() error {
	if f.closed {
		return ErrClosed
	}
	if f.state == StateSubmitting {
		return ErrSubmitInProgress
	}
	return nil
}

// ChangeField sets one field and re-validates that field only. The value is
// stored even when it is invalid.
func (f *Form) ChangeField(field Field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editableLocked(); err != nil {
		return err
	}
	if !f.schema.Has(field) {
		return errors.Wrapf(ErrUnknownField, "%q", field)
	}

	f.values[field] = value
	if verr := f.schema.ValidateField(field, value); verr != nil {
		f.fieldErrors[field] = verr.Reason
		return verr
	}
	delete(f.fieldErrors, field)
	return nil
}

// SelectImages checks each upload and appends the accepted ones in order.
// Files that are not images or exceed MaxImageBytes are rejected one by one;
// if the remaining files would push the draft past MaxImages the whole
// selection is rejected. The returned error joins every rejection, so a
// non-nil error does not mean nothing was accepted.
func (f *Form) SelectImages(ctx context.Context, uploads []Upload) ([]uuid.UUID, error) {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}

	var (
		accepted []ImageFile
		rejected []error
		notes    []Notification
	)
	for _, u := range uploads {
		img, rerr := checkUpload(u)
		if rerr != nil {
			rejected = append(rejected, rerr)
			notes = append(notes, f.noteLocked(NotifyWarning, rerr.Error()))
			continue
		}
		accepted = append(accepted, img)
	}

	if total := len(f.images) + len(accepted); total > MaxImages {
		countErr := &ImageCountError{Min: MinImages, Max: MaxImages, Actual: total}
		f.imageError = fmt.Sprintf("You can upload at most %d images.", MaxImages)
		notes = append(notes, f.noteLocked(NotifyFailure, f.imageError))
		f.mu.Unlock()

		f.dispatch(ctx, notes)
		return nil, stderrors.Join(append(rejected, countErr)...)
	}

	ids := make([]uuid.UUID, len(accepted))
	for i, img := range accepted {
		ids[i] = img.ID
		f.images = append(f.images, img)
		f.previews[img.ID] = Preview{FileID: img.ID, Label: img.Name, Pending: true}
		f.startPreviewLocked(img)
	}
	if len(accepted) > 0 {
		f.imageError = ""
	}
	f.mu.Unlock()

	f.dispatch(ctx, notes)
	return ids, stderrors.Join(rejected...)
}

// checkUpload validates the media type and size of a single upload. The
// media type is sniffed from the content; the declared type is not trusted.
func checkUpload(u Upload) (ImageFile, error) {
	size := int64(len(u.Data))
	detected := mimetype.Detect(u.Data).String()
	if !isImageType(detected) {
		return ImageFile{}, &ImageRejectedError{File: u.Name, ContentType: detected, Size: size, Reason: RejectType}
	}
	if size > MaxImageBytes {
		return ImageFile{}, &ImageRejectedError{File: u.Name, ContentType: detected, Size: size, Reason: RejectSize}
	}
	return ImageFile{
		ID:          uuid.New(),
		Name:        u.Name,
		ContentType: detected,
		Size:        size,
		Data:        u.Data,
	}, nil
}

// isImageType accepts raster image types. SVG is excluded since it may carry
// scripts.
func isImageType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "image/") && !strings.HasPrefix(ct, "image/svg")
}

// startPreviewLocked launches preview generation for img. The result is
// applied only if img is still part of the same draft generation.
func (f *Form) startPreviewLocked(img ImageFile) {
	gen := f.generation
	f.workers.Add(1)
	go func() {
		defer f.workers.Done()

		p, err := f.previewer.Preview(f.workCtx, img)
		if err != nil {
			p = Preview{Failed: err.Error()}
		}
		p.FileID = img.ID
		p.Label = img.Name
		p.Pending = false

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed || gen != f.generation || !f.hasImageLocked(img.ID) {
			return
		}
		f.previews[img.ID] = p
	}()
}

func (f *Form) hasImageLocked(id uuid.UUID) bool {
	return slices.ContainsFunc(f.images, func(img ImageFile) bool { return img.ID == id })
}

// RemoveImage removes the image at index together with its preview.
func (f *Form) RemoveImage(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(f.images) {
		return errors.Wrapf(ErrImageIndexOutOfRange, "index %d, have %d", index, len(f.images))
	}

	id := f.images[index].ID
	f.images = slices.Delete(f.images, index, index+1)
	delete(f.previews, id)
	f.imageError = ""
	return nil
}

// ToggleSize adds size to the draft if absent and removes it otherwise.
func (f *Form) ToggleSize(size string) error {
	s, ok := product.ParseSize(size)
	if !ok {
		return &FieldValidationError{Field: FieldSizes, Reason: fmt.Sprintf("Unknown size %q.", size)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.editableLocked(); err != nil {
		return err
	}
	if i := slices.Index(f.sizes, s); i >= 0 {
		f.sizes = slices.Delete(f.sizes, i, i+1)
		return nil
	}
	f.sizes = append(f.sizes, s)
	return nil
}

// Submit validates the whole draft and, if it is valid, calls the submission
// function once. On success the draft is reset; on failure it is kept so the
// operator can retry. While a submission is outstanding Submit returns
// ErrSubmitInProgress without doing anything.
func (f *Form) Submit(ctx context.Context) (*product.Product, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return nil, ErrSubmitInProgress
	}

	draft, verr := f.validateLocked()
	if verr != nil {
		f.mu.Unlock()
		return nil, verr
	}
	f.state = StateSubmitting
	f.mu.Unlock()

	rec, err := f.submit(ctx, draft)

	f.mu.Lock()
	f.state = StateEditing
	if err != nil {
		note := f.noteLocked(NotifyFailure, "Failed to create product: "+err.Error())
		f.mu.Unlock()

		zctx.From(ctx).Warn("Product submission failed", zap.String("form_id", f.id), zap.Error(err))
		f.dispatch(ctx, []Notification{note})
		return nil, &SubmissionError{Cause: err}
	}
	f.resetLocked()
	note := f.noteLocked(NotifySuccess, fmt.Sprintf("Product %q created.", draft.Name))
	f.mu.Unlock()

	f.dispatch(ctx, []Notification{note})
	return rec, nil
}

// validateLocked runs every field rule plus the image count check and builds
// the typed draft. Field errors are recorded for Render.
func (f *Form) validateLocked() (Draft, error) {
	fieldErrs := f.schema.Validate(f.values)
	clear(f.fieldErrors)
	for _, e := range fieldErrs {
		f.fieldErrors[e.Field] = e.Reason
	}

	var countErr *ImageCountError
	if n := len(f.images); n < MinImages || n > MaxImages {
		countErr = &ImageCountError{Min: MinImages, Max: MaxImages, Actual: n}
		f.imageError = fmt.Sprintf("Please upload between %d and %d images.", MinImages, MaxImages)
	} else {
		f.imageError = ""
	}

	if len(fieldErrs) > 0 || countErr != nil {
		return Draft{}, &ValidationError{Fields: fieldErrs, Images: countErr}
	}

	price, stock, ferr := parseNumbers(f.values)
	if ferr != nil {
		f.fieldErrors[ferr.Field] = ferr.Reason
		return Draft{}, &ValidationError{Fields: []*FieldValidationError{ferr}}
	}

	return Draft{
		Name:        f.values[FieldName],
		Price:       price,
		SKU:         f.values[FieldSKU],
		Stock:       stock,
		Description: f.values[FieldDescription],
		Category:    product.Category(f.values[FieldCategory]),
		Sizes:       slices.Clone(f.sizes),
		Images:      slices.Clone(f.images),
	}, nil
}

// parseNumbers converts the validated price and stock. A schema without the
// default bounds can still let through values the draft cannot hold; those
// are reported as field errors instead of being truncated.
func parseNumbers(values map[Field]string) (decimal.Decimal, int, *FieldValidationError) {
	price, err := decimal.NewFromString(values[FieldPrice])
	if err != nil {
		return decimal.Decimal{}, 0, &FieldValidationError{Field: FieldPrice, Reason: "Price must be a positive number."}
	}
	d, err := decimal.NewFromString(values[FieldStock])
	if err != nil || !d.IsInteger() {
		return decimal.Decimal{}, 0, &FieldValidationError{Field: FieldStock, Reason: "Stock must be a non-negative integer."}
	}
	stock, err := strconv.Atoi(d.String())
	if err != nil || stock < 0 || stock > MaxStock {
		return decimal.Decimal{}, 0, &FieldValidationError{Field: FieldStock, Reason: "Stock must be at most 2147483647."}
	}
	return price, stock, nil
}

// resetLocked empties the draft. Bumping the generation orphans any preview
// still being generated.
func (f *Form) resetLocked() {
	clear(f.values)
	clear(f.fieldErrors)
	clear(f.previews)
	f.sizes = nil
	f.images = nil
	f.imageError = ""
	f.generation++
}

// Reset discards the draft contents and returns the form to an empty state.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

// Close discards the draft. Previews still being generated are cancelled and
// their results ignored. Close is idempotent.
func (f *Form) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		f.resetLocked()
	}
	f.mu.Unlock()
	f.cancelWork()
}

// Wait blocks until every preview worker started so far has finished.
func (f *Form) Wait() {
	f.workers.Wait()
}

// Submitting reports whether a submission is outstanding.
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StateSubmitting
}

func (f *Form) noteLocked(kind NotificationKind, msg string) Notification {
	n := Notification{Kind: kind, Message: msg, At: f.now()}
	f.notifications = append(f.notifications, n)
	if over := len(f.notifications) - maxNotifications; over > 0 {
		f.notifications = slices.Delete(f.notifications, 0, over)
	}
	return n
}

// dispatch forwards notifications to the configured notifier. It must be
// called without holding f.mu.
func (f *Form) dispatch(ctx context.Context, notes []Notification) {
	if f.notifier == nil {
		return
	}
	for _, n := range notes {
		f.notifier.Notify(ctx, n)
	}
}
