package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/catalog-admin/internal/domain/productform"
)

// OpenDraft starts a draft session and returns its empty view.
func (h *Handler) OpenDraft(c *gin.Context) {
	f := h.drafts.Open()
	c.JSON(http.StatusCreated, f.Render())
}

// GetDraft renders the draft.
func (h *Handler) GetDraft(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, f.Render())
}

// DiscardDraft ends the session; pending previews are dropped.
func (h *Handler) DiscardDraft(c *gin.Context) {
	if err := h.drafts.Discard(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type changeFieldRequest struct {
	Value *string `json:"value" binding:"required"`
}

// ChangeField sets one field. An invalid value is stored and reported with
// 422 together with the current view.
func (h *Handler) ChangeField(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}

	var req changeFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "body must be {\"value\": string}")
		return
	}

	err := f.ChangeField(productform.Field(c.Param("field")), *req.Value)
	var ferr *productform.FieldValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, f.Render())
	case errors.As(err, &ferr):
		c.JSON(http.StatusUnprocessableEntity, f.Render())
	default:
		writeError(c, err)
	}
}

type rejection struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

type selectImagesResponse struct {
	Accepted []uuid.UUID      `json:"accepted"`
	Rejected []rejection      `json:"rejected,omitempty"`
	Draft    productform.View `json:"draft"`
}

// SelectImages adds the files of the multipart "images" field. Files that
// fail the type or size check are listed in the response; the rest are
// added. Exceeding the image limit rejects the whole selection with 422.
func (h *Handler) SelectImages(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		abort(c, http.StatusBadRequest, "expected multipart form with \"images\" files")
		return
	}
	headers := form.File["images"]
	if len(headers) == 0 {
		abort(c, http.StatusBadRequest, "no files in \"images\"")
		return
	}

	uploads := make([]productform.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := readUpload(fh)
		if err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
		uploads = append(uploads, u)
	}

	ids, err := f.SelectImages(c.Request.Context(), uploads)
	resp := selectImagesResponse{Accepted: ids}
	if resp.Accepted == nil {
		resp.Accepted = []uuid.UUID{}
	}

	status := http.StatusOK
	for _, e := range unjoin(err) {
		var (
			rerr *productform.ImageRejectedError
			cerr *productform.ImageCountError
		)
		switch {
		case errors.As(e, &rerr):
			resp.Rejected = append(resp.Rejected, rejection{File: rerr.File, Reason: string(rerr.Reason), Error: rerr.Error()})
		case errors.As(e, &cerr):
			status = http.StatusUnprocessableEntity
		default:
			writeError(c, e)
			return
		}
	}
	resp.Draft = f.Render()
	c.JSON(status, resp)
}

// readUpload reads at most one byte past the image size limit so oversized
// files are still detected without buffering them whole.
func readUpload(fh *multipart.FileHeader) (productform.Upload, error) {
	file, err := fh.Open()
	if err != nil {
		return productform.Upload{}, errors.Wrapf(err, "open %s", fh.Filename)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, productform.MaxImageBytes+1))
	if err != nil {
		return productform.Upload{}, errors.Wrapf(err, "read %s", fh.Filename)
	}
	return productform.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// unjoin flattens an error produced by errors.Join.
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// RemoveImage removes the image at the given position.
func (h *Handler) RemoveImage(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abort(c, http.StatusBadRequest, "image index must be an integer")
		return
	}
	if err := f.RemoveImage(index); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f.Render())
}

// ToggleSize adds or removes a size.
func (h *Handler) ToggleSize(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}
	if err := f.ToggleSize(c.Param("size")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f.Render())
}

// SubmitDraft validates the draft and creates the product.
func (h *Handler) SubmitDraft(c *gin.Context) {
	f, ok := h.form(c)
	if !ok {
		return
	}

	// The product write and the draft reset must not be cut short by the
	// client going away mid-request.
	ctx := c.Request.Context()
	created, err := f.Submit(context.WithoutCancel(ctx))
	h.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", submitOutcome(err))))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newProductResponse(created))
}

func submitOutcome(err error) string {
	var (
		verr *productform.ValidationError
		serr *productform.SubmissionError
	)
	switch {
	case err == nil:
		return "created"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, productform.ErrSubmitInProgress):
		return "busy"
	case errors.As(err, &serr):
		return "failed"
	default:
		return "error"
	}
}

// form resolves the :id parameter to an open draft, writing the error
// response when it does not exist.
func (h *Handler) form(c *gin.Context) (*productform.Form, bool) {
	f, err := h.drafts.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return f, true
}
