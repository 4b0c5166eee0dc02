package productform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Mock implementations ---

type recordingSubmit struct {
	mu     sync.Mutex
	calls  []Draft
	err    error
	result *product.Product
}

func (r *recordingSubmit) Submit(_ context.Context, d Draft) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &product.Product{ID: "p-1", Name: d.Name, SKU: d.SKU, Price: d.Price}, nil
}

func (r *recordingSubmit) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// gatedPreviewer blocks each preview until its file name is released.
type gatedPreviewer struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newGatedPreviewer(names ...string) *gatedPreviewer {
	g := &gatedPreviewer{gates: make(map[string]chan struct{})}
	for _, n := range names {
		g.gates[n] = make(chan struct{})
	}
	return g
}

func (g *gatedPreviewer) Preview(ctx context.Context, img ImageFile) (Preview, error) {
	g.mu.Lock()
	gate := g.gates[img.Name]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Preview{}, ctx.Err()
		}
	}
	return Preview{URL: "preview://" + img.Name}, nil
}

func (g *gatedPreviewer) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.gates[name])
}

var staticPreviewer = PreviewerFunc(func(_ context.Context, img ImageFile) (Preview, error) {
	return Preview{URL: "preview://" + img.Name}, nil
})

// --- Helpers ---

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// pngBytes returns n bytes that sniff as image/png.
func pngBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, pngSignature)
	return b
}

func pngUpload(name string, n int) Upload {
	return Upload{Name: name, ContentType: "image/png", Data: pngBytes(n)}
}

func fillValidFields(t *testing.T, f *Form) {
	t.Helper()
	for field, value := range map[Field]string{
		FieldName:        "Desk Lamp",
		FieldPrice:       "49.99",
		FieldSKU:         "DL-001",
		FieldStock:       "25",
		FieldDescription: "Adjustable LED desk lamp",
		FieldCategory:    "home",
	} {
		require.NoError(t, f.ChangeField(field, value))
	}
}

func newValidForm(t *testing.T, submit SubmitFunc, opts ...Option) *Form {
	t.Helper()
	opts = append([]Option{WithPreviewer(staticPreviewer)}, opts...)
	f := New(submit, opts...)
	t.Cleanup(func() {
		f.Close()
		f.Wait()
	})
	fillValidFields(t, f)
	_, err := f.SelectImages(context.Background(), []Upload{
		pngUpload("front.png", 1<<20),
		pngUpload("side.png", 1<<20),
	})
	require.NoError(t, err)
	return f
}

func imageNames(v View) []string {
	names := make([]string, len(v.Images))
	for i, img := range v.Images {
		names[i] = img.Name
	}
	return names
}

// --- Tests ---

func TestForm_SubmitValidDraft(t *testing.T) {
	rec := &recordingSubmit{}
	f := newValidForm(t, rec.Submit)
	require.NoError(t, f.ToggleSize("M"))

	created, err := f.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Desk Lamp", created.Name)

	require.Equal(t, 1, rec.Calls())
	d := rec.calls[0]
	assert.Equal(t, "Desk Lamp", d.Name)
	assert.True(t, decimal.RequireFromString("49.99").Equal(d.Price))
	assert.Equal(t, "DL-001", d.SKU)
	assert.Equal(t, 25, d.Stock)
	assert.Equal(t, product.CategoryHome, d.Category)
	assert.Equal(t, []product.Size{product.SizeM}, d.Sizes)
	require.Len(t, d.Images, 2)
	assert.Equal(t, "front.png", d.Images[0].Name)
	assert.Equal(t, "side.png", d.Images[1].Name)
	assert.Equal(t, "image/png", d.Images[0].ContentType)

	v := f.Render()
	assert.Equal(t, StateEditing, v.State)
	assert.False(t, v.Submitting)
	assert.Empty(t, v.Values)
	assert.Empty(t, v.Sizes)
	assert.Empty(t, v.Images)
	require.NotEmpty(t, v.Notifications)
	last := v.Notifications[len(v.Notifications)-1]
	assert.Equal(t, NotifySuccess, last.Kind)
	assert.Contains(t, last.Message, "Desk Lamp")
}

func TestForm_SubmitImageCount(t *testing.T) {
	tests := []struct {
		name   string
		images int
	}{
		{name: "none", images: 0},
		{name: "one", images: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSubmit{}
			f := New(rec.Submit, WithPreviewer(staticPreviewer))
			defer f.Wait()
			defer f.Close()
			fillValidFields(t, f)
			for i := range tt.images {
				_, err := f.SelectImages(context.Background(), []Upload{pngUpload(fmt.Sprintf("%d.png", i), 1024)})
				require.NoError(t, err)
			}

			_, err := f.Submit(context.Background())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotNil(t, verr.Images)
			assert.Equal(t, ImageCountError{Min: 2, Max: 4, Actual: tt.images}, *verr.Images)
			assert.Empty(t, verr.Fields)
			assert.Zero(t, rec.Calls())
			assert.NotEmpty(t, f.Render().ImageError)
		})
	}
}

func TestForm_SubmitInvalidFields(t *testing.T) {
	rec := &recordingSubmit{}
	f := newValidForm(t, rec.Submit)

	require.Error(t, f.ChangeField(FieldPrice, "-3"))
	require.Error(t, f.ChangeField(FieldStock, "2.5"))

	_, err := f.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Nil(t, verr.Images)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, FieldPrice, verr.Fields[0].Field)
	assert.Equal(t, FieldStock, verr.Fields[1].Field)
	assert.Zero(t, rec.Calls())

	// Untouched fields are caught on submit too.
	g := New(rec.Submit, WithPreviewer(staticPreviewer))
	defer g.Wait()
	defer g.Close()
	_, err = g.Submit(context.Background())
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 6)
	require.NotNil(t, verr.Images)
	assert.Zero(t, rec.Calls())

	v := g.Render()
	assert.Equal(t, "Please select a category.", v.Errors[FieldCategory])
	assert.Equal(t, "Product name must be at least 2 characters.", v.Errors[FieldName])
}

func TestForm_SubmitFailureKeepsDraft(t *testing.T) {
	rec := &recordingSubmit{err: errors.New("network down")}
	f := newValidForm(t, rec.Submit)
	before := f.Render()

	_, err := f.Submit(context.Background())
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.EqualError(t, serr.Cause, "network down")
	assert.Equal(t, 1, rec.Calls())

	after := f.Render()
	assert.False(t, after.Submitting)
	assert.Equal(t, before.Values, after.Values)
	assert.Equal(t, imageNames(before), imageNames(after))
	last := after.Notifications[len(after.Notifications)-1]
	assert.Equal(t, NotifyFailure, last.Kind)
	assert.Contains(t, last.Message, "network down")

	// The operator can retry without re-entering data.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Calls())
}

func TestForm_SubmitWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	submit := func(ctx context.Context, d Draft) (*product.Product, error) {
		calls.Add(1)
		<-release
		return &product.Product{ID: "p-1", Name: d.Name}, nil
	}
	f := newValidForm(t, submit)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, f.Submitting, time.Second, time.Millisecond)
	assert.True(t, f.Render().Submitting)

	_, err := f.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmitInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, f.Submitting())
}

func TestForm_EditsWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	rec := &recordingSubmit{}
	submit := func(ctx context.Context, d Draft) (*product.Product, error) {
		<-release
		return rec.Submit(ctx, d)
	}
	f := newValidForm(t, submit)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, f.Submitting, time.Second, time.Millisecond)

	require.ErrorIs(t, f.ChangeField(FieldName, "Floor Lamp"), ErrSubmitInProgress)
	ids, err := f.SelectImages(context.Background(), []Upload{pngUpload("back.png", 1024)})
	require.ErrorIs(t, err, ErrSubmitInProgress)
	assert.Empty(t, ids)
	require.ErrorIs(t, f.RemoveImage(0), ErrSubmitInProgress)
	require.ErrorIs(t, f.ToggleSize("M"), ErrSubmitInProgress)

	v := f.Render()
	assert.Equal(t, "Desk Lamp", v.Values[FieldName])
	assert.Equal(t, []string{"front.png", "side.png"}, imageNames(v))

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, 1, rec.Calls())
	assert.Equal(t, "Desk Lamp", rec.calls[0].Name)
	assert.Len(t, rec.calls[0].Images, 2)
	assert.Empty(t, rec.calls[0].Sizes)

	// Editing resumes once the submission settles.
	require.NoError(t, f.ChangeField(FieldName, "Floor Lamp"))
}

func TestForm_SubmitOutOfRangeNumbers(t *testing.T) {
	rec := &recordingSubmit{}
	f := newValidForm(t, rec.Submit)

	var ferr *FieldValidationError
	require.ErrorAs(t, f.ChangeField(FieldStock, "9223372036854775808"), &ferr)
	assert.Equal(t, FieldStock, ferr.Field)
	require.ErrorAs(t, f.ChangeField(FieldPrice, "19.999"), &ferr)
	assert.Equal(t, FieldPrice, ferr.Field)

	_, err := f.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 2)
	assert.Zero(t, rec.Calls())

	require.NoError(t, f.ChangeField(FieldStock, "2147483647"))
	require.NoError(t, f.ChangeField(FieldPrice, "9999999999.99"))
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rec.Calls())
	assert.Equal(t, 2147483647, rec.calls[0].Stock)
	assert.True(t, MaxPrice.Equal(rec.calls[0].Price))
}

func TestForm_SubmitCustomSchemaWithoutBounds(t *testing.T) {
	var fields []FieldRules
	for _, field := range DefaultSchema().Fields() {
		fields = append(fields, FieldRules{Field: field, Rules: []Rule{{Tag: "required", Message: "Required."}}})
	}
	rec := &recordingSubmit{}
	f := newValidForm(t, rec.Submit, WithSchema(NewSchema(fields)))

	require.NoError(t, f.ChangeField(FieldStock, "9223372036854775808"))
	_, err := f.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, FieldStock, verr.Fields[0].Field)
	assert.Equal(t, "Stock must be at most 2147483647.", f.Render().Errors[FieldStock])
	assert.Zero(t, rec.Calls())
}

func TestForm_ChangeField(t *testing.T) {
	f := New(nil, WithPreviewer(staticPreviewer))
	defer f.Close()

	err := f.ChangeField(FieldName, "A")
	var ferr *FieldValidationError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, FieldName, ferr.Field)

	v := f.Render()
	assert.Equal(t, "A", v.Values[FieldName], "invalid value is still stored")
	assert.Equal(t, "Product name must be at least 2 characters.", v.Errors[FieldName])
	assert.NotContains(t, v.Errors, FieldSKU, "other fields are not validated")

	require.NoError(t, f.ChangeField(FieldName, "Desk Lamp"))
	assert.NotContains(t, f.Render().Errors, FieldName)

	require.ErrorIs(t, f.ChangeField("colour", "red"), ErrUnknownField)
	require.ErrorIs(t, f.ChangeField(FieldSizes, "M"), ErrUnknownField)
}

func TestForm_SelectImagesRejects(t *testing.T) {
	tests := []struct {
		name   string
		upload Upload
		reason RejectReason
	}{
		{
			name:   "oversized",
			upload: pngUpload("huge.png", MaxImageBytes+1),
			reason: RejectSize,
		},
		{
			name:   "text",
			upload: Upload{Name: "notes.txt", ContentType: "text/plain", Data: []byte("just some notes")},
			reason: RejectType,
		},
		{
			name:   "declared image but not one",
			upload: Upload{Name: "fake.png", ContentType: "image/png", Data: []byte("%PDF-1.4 fake")},
			reason: RejectType,
		},
		{
			name:   "svg",
			upload: Upload{Name: "logo.svg", ContentType: "image/svg+xml", Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)},
			reason: RejectType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(nil, WithPreviewer(staticPreviewer))
			defer f.Wait()
			defer f.Close()
			_, err := f.SelectImages(context.Background(), []Upload{pngUpload("keep.png", 64)})
			require.NoError(t, err)

			ids, err := f.SelectImages(context.Background(), []Upload{tt.upload})
			var rerr *ImageRejectedError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.reason, rerr.Reason)
			assert.Equal(t, tt.upload.Name, rerr.File)
			assert.Empty(t, ids)
			assert.Equal(t, []string{"keep.png"}, imageNames(f.Render()))
		})
	}
}

func TestForm_SelectImagesExactLimit(t *testing.T) {
	f := New(nil, WithPreviewer(staticPreviewer))
	defer f.Wait()
	defer f.Close()

	_, err := f.SelectImages(context.Background(), []Upload{pngUpload("exact.png", MaxImageBytes)})
	require.NoError(t, err)
	assert.Len(t, f.Render().Images, 1)
}

func TestForm_SelectImagesPartialBatch(t *testing.T) {
	f := New(nil, WithPreviewer(staticPreviewer))
	defer f.Wait()
	defer f.Close()

	ids, err := f.SelectImages(context.Background(), []Upload{
		pngUpload("a.png", 128),
		{Name: "b.txt", Data: []byte("hello")},
		pngUpload("c.png", 128),
	})
	var rerr *ImageRejectedError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "b.txt", rerr.File)
	assert.Len(t, ids, 2)

	v := f.Render()
	assert.Equal(t, []string{"a.png", "c.png"}, imageNames(v))
	assert.True(t, v.Images[0].Primary)
	assert.False(t, v.Images[1].Primary)
	require.NotEmpty(t, v.Notifications)
	assert.Equal(t, NotifyWarning, v.Notifications[0].Kind)
}

func TestForm_SelectImagesOverLimit(t *testing.T) {
	f := New(nil, WithPreviewer(staticPreviewer))
	defer f.Wait()
	defer f.Close()

	_, err := f.SelectImages(context.Background(), []Upload{
		pngUpload("1.png", 64), pngUpload("2.png", 64), pngUpload("3.png", 64),
	})
	require.NoError(t, err)

	ids, err := f.SelectImages(context.Background(), []Upload{pngUpload("4.png", 64), pngUpload("5.png", 64)})
	var cerr *ImageCountError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ImageCountError{Min: 2, Max: 4, Actual: 5}, *cerr)
	assert.Empty(t, ids)

	v := f.Render()
	assert.Equal(t, []string{"1.png", "2.png", "3.png"}, imageNames(v))
	assert.NotEmpty(t, v.ImageError)

	_, err = f.SelectImages(context.Background(), []Upload{pngUpload("4.png", 64)})
	require.NoError(t, err)
	assert.Len(t, f.Render().Images, 4)
}

func TestForm_RemoveImage(t *testing.T) {
	f := New(nil, WithPreviewer(staticPreviewer))
	defer f.Wait()
	defer f.Close()

	_, err := f.SelectImages(context.Background(), []Upload{
		pngUpload("a.png", 64), pngUpload("b.png", 64), pngUpload("c.png", 64),
	})
	require.NoError(t, err)

	require.ErrorIs(t, f.RemoveImage(3), ErrImageIndexOutOfRange)
	require.ErrorIs(t, f.RemoveImage(-1), ErrImageIndexOutOfRange)
	assert.Len(t, f.Render().Images, 3)

	require.NoError(t, f.RemoveImage(0))
	v := f.Render()
	assert.Equal(t, []string{"b.png", "c.png"}, imageNames(v))
	assert.True(t, v.Images[0].Primary, "next image becomes primary")

	_, err = f.SelectImages(context.Background(), []Upload{pngUpload("d.png", 64)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.png", "c.png", "d.png"}, imageNames(f.Render()))
}

func TestForm_ToggleSize(t *testing.T) {
	f := New(nil)
	defer f.Close()

	require.NoError(t, f.ToggleSize("S"))
	before := f.Render().Sizes

	require.NoError(t, f.ToggleSize("M"))
	assert.Equal(t, []product.Size{product.SizeS, product.SizeM}, f.Render().Sizes)
	require.NoError(t, f.ToggleSize("M"))
	assert.Equal(t, before, f.Render().Sizes)

	err := f.ToggleSize("XXXL")
	var ferr *FieldValidationError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, FieldSizes, ferr.Field)
	assert.Equal(t, before, f.Render().Sizes)
}

func TestForm_PreviewsOutOfOrder(t *testing.T) {
	prev := newGatedPreviewer("a.png", "b.png")
	f := New(nil, WithPreviewer(prev))
	defer f.Wait()
	defer f.Close()

	_, err := f.SelectImages(context.Background(), []Upload{pngUpload("a.png", 64), pngUpload("b.png", 64)})
	require.NoError(t, err)
	for _, img := range f.Render().Images {
		assert.True(t, img.Preview.Pending)
	}

	prev.Release("b.png")
	require.Eventually(t, func() bool {
		return !f.Render().Images[1].Preview.Pending
	}, time.Second, time.Millisecond)
	v := f.Render()
	assert.True(t, v.Images[0].Preview.Pending)
	assert.Equal(t, "preview://b.png", v.Images[1].Preview.URL)

	prev.Release("a.png")
	f.Wait()
	v = f.Render()
	assert.Equal(t, "preview://a.png", v.Images[0].Preview.URL)
	assert.Equal(t, "a.png", v.Images[0].Preview.Label)
	assert.Equal(t, "preview://b.png", v.Images[1].Preview.URL)
}

func TestForm_PreviewAfterRemoval(t *testing.T) {
	prev := newGatedPreviewer("gone.png")
	f := New(nil, WithPreviewer(prev))
	defer f.Close()

	ids, err := f.SelectImages(context.Background(), []Upload{pngUpload("gone.png", 64)})
	require.NoError(t, err)
	require.NoError(t, f.RemoveImage(0))

	prev.Release("gone.png")
	f.Wait()

	f.mu.Lock()
	_, resurrected := f.previews[ids[0]]
	f.mu.Unlock()
	assert.False(t, resurrected)
	assert.Empty(t, f.Render().Images)
}

func TestForm_PreviewAfterReset(t *testing.T) {
	prev := newGatedPreviewer("slow.png")
	f := New(nil, WithPreviewer(prev))
	defer f.Close()

	ids, err := f.SelectImages(context.Background(), []Upload{pngUpload("slow.png", 64)})
	require.NoError(t, err)
	f.Reset()

	prev.Release("slow.png")
	f.Wait()

	f.mu.Lock()
	_, resurrected := f.previews[ids[0]]
	f.mu.Unlock()
	assert.False(t, resurrected)
}

func TestForm_PreviewFailure(t *testing.T) {
	failing := PreviewerFunc(func(context.Context, ImageFile) (Preview, error) {
		return Preview{}, errors.New("corrupt image")
	})
	f := New(nil, WithPreviewer(failing))
	defer f.Close()

	_, err := f.SelectImages(context.Background(), []Upload{pngUpload("bad.png", 64)})
	require.NoError(t, err)
	f.Wait()

	p := f.Render().Images[0].Preview
	assert.False(t, p.Pending)
	assert.Equal(t, "corrupt image", p.Failed)
	assert.Equal(t, "bad.png", p.Label)
}

func TestForm_Close(t *testing.T) {
	prev := newGatedPreviewer("pending.png")
	f := New(nil, WithPreviewer(prev))

	_, err := f.SelectImages(context.Background(), []Upload{pngUpload("pending.png", 64)})
	require.NoError(t, err)

	f.Close()
	f.Close()
	f.Wait()

	require.ErrorIs(t, f.ChangeField(FieldName, "Lamp"), ErrClosed)
	require.ErrorIs(t, f.ToggleSize("M"), ErrClosed)
	require.ErrorIs(t, f.RemoveImage(0), ErrClosed)
	_, err = f.SelectImages(context.Background(), []Upload{pngUpload("x.png", 64)})
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.Submit(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, f.Render().Images)
}

func TestForm_Notifications(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Notification
	)
	notifier := NotifierFunc(func(_ context.Context, n Notification) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, n)
	})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(nil, WithNotifier(notifier), WithClock(func() time.Time { return now }), WithPreviewer(staticPreviewer))
	defer f.Wait()
	defer f.Close()

	for i := range maxNotifications + 5 {
		_, err := f.SelectImages(context.Background(), []Upload{{Name: fmt.Sprintf("%d.txt", i), Data: []byte("text")}})
		require.Error(t, err)
	}

	v := f.Render()
	require.Len(t, v.Notifications, maxNotifications)
	assert.Contains(t, v.Notifications[0].Message, "5.txt")
	assert.Equal(t, now, v.Notifications[0].At)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, maxNotifications+5)
}

func TestForm_RenderIsSnapshot(t *testing.T) {
	f := newValidForm(t, nil)
	v := f.Render()
	v.Values[FieldName] = "changed"
	v.Images[0].Name = "changed.png"

	again := f.Render()
	assert.Equal(t, "Desk Lamp", again.Values[FieldName])
	assert.Equal(t, "front.png", again.Images[0].Name)
}
