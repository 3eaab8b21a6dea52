package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/emicklei/go-restful/v3"

	"github.com/babelcloud/gbox/packages/visual-test/internal/artifact"
	"github.com/babelcloud/gbox/packages/visual-test/internal/capture/service"
	apperrors "github.com/babelcloud/gbox/packages/visual-test/internal/common/errors"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// MaxBodyBytes limits capture request bodies
const MaxBodyBytes = 5 << 20

const mimeForm = "application/x-www-form-urlencoded"

// CaptureHandler exposes the capture service over HTTP
type CaptureHandler struct {
	service *service.CaptureService
	store   *artifact.Store
	logger  *logger.Logger
}

// NewCaptureHandler creates a new CaptureHandler
func NewCaptureHandler(svc *service.CaptureService, store *artifact.Store) *CaptureHandler {
	return &CaptureHandler{service: svc, store: store, logger: logger.New()}
}

// writeError writes a {code,message} body with the given status
func (h *CaptureHandler) writeError(resp *restful.Response, code int, message string) {
	h.logger.Warn("API Error (%d): %s", code, message)
	_ = resp.WriteHeaderAndJson(code, apperrors.New(code, message), restful.MIME_JSON)
}

// MakeScreenshot handles POST /visual-test/make-screenshot. Only a body
// that cannot be read yields a non-200 status; capture and comparison
// failures are reported in the JSON result.
func (h *CaptureHandler) MakeScreenshot(req *restful.Request, resp *restful.Response) {
	req.Request.Body = http.MaxBytesReader(resp.ResponseWriter, req.Request.Body, MaxBodyBytes)

	params, err := readCaptureParams(req)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(resp, apperrors.CodePayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes))
			return
		}
		h.writeError(resp, apperrors.CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := params.Validate(); err != nil {
		h.writeError(resp, apperrors.CodeBadRequest, err.Error())
		return
	}

	result := h.service.MakeScreenshot(req.Request.Context(), params)
	_ = resp.WriteHeaderAndJson(http.StatusOK, result, restful.MIME_JSON)
}

// readCaptureParams decodes a JSON or form encoded capture request
func readCaptureParams(req *restful.Request) (*model.CaptureParams, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Request.Header.Get("Content-Type"))
	if mediaType != mimeForm {
		params := &model.CaptureParams{}
		if err := req.ReadEntity(params); err != nil {
			return nil, err
		}
		return params, nil
	}

	if err := req.Request.ParseForm(); err != nil {
		return nil, err
	}
	form := req.Request.PostForm
	params := &model.CaptureParams{
		URL:      form.Get("url"),
		Name:     form.Get("name"),
		Selector: form.Get("selector"),
	}
	if v := form.Get("fullPage"); v != "" {
		b, err := model.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("fullPage: %w", err)
		}
		params.FullPage = model.Bool(b)
	}
	ints := []struct {
		key string
		dst **model.FlexInt
	}{
		{"delayMs", &params.DelayMs},
		{"windowWidth", &params.WindowWidth},
		{"windowHeight", &params.WindowHeight},
	}
	for _, field := range ints {
		v := form.Get(field.key)
		if v == "" {
			continue
		}
		n, err := model.ParseInt(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field.key, err)
		}
		*field.dst = model.Int(n)
	}
	return params, nil
}

// GetImage handles GET /visual-test/images/{kind}/{name}
func (h *CaptureHandler) GetImage(req *restful.Request, resp *restful.Response) {
	kind, err := artifact.ParseKind(req.PathParameter("kind"))
	if err != nil {
		h.writeError(resp, apperrors.CodeBadRequest, err.Error())
		return
	}

	f, stat, err := h.store.Open(kind, req.PathParameter("name"))
	if err != nil {
		switch {
		case errors.Is(err, artifact.ErrInvalidName):
			h.writeError(resp, apperrors.CodeBadRequest, err.Error())
		case errors.Is(err, artifact.ErrNotFound):
			h.writeError(resp, apperrors.CodeNotFound, err.Error())
		default:
			h.writeError(resp, apperrors.CodeInternalError, err.Error())
		}
		return
	}
	defer f.Close()

	resp.AddHeader("Content-Type", stat.Mime)
	resp.AddHeader("Content-Length", strconv.FormatInt(stat.Size, 10))
	resp.AddHeader("Last-Modified", stat.ModTime)
	resp.WriteHeader(http.StatusOK)
	if _, err := io.Copy(resp, f); err != nil {
		h.logger.Error("Error streaming %s: %v", stat.Path, err)
	}
}

// Approve handles POST /visual-test/approve
func (h *CaptureHandler) Approve(req *restful.Request, resp *restful.Response) {
	params := &model.ApproveParams{}
	if err := req.ReadEntity(params); err != nil {
		h.writeError(resp, apperrors.CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if params.Name == "" {
		h.writeError(resp, apperrors.CodeBadRequest, "missing parameter: name")
		return
	}

	result, err := h.service.Approve(params)
	if err != nil {
		switch {
		case errors.Is(err, artifact.ErrInvalidName):
			h.writeError(resp, apperrors.CodeBadRequest, err.Error())
		case errors.Is(err, artifact.ErrNotFound):
			h.writeError(resp, apperrors.CodeNotFound, err.Error())
		default:
			h.writeError(resp, apperrors.CodeInternalError, err.Error())
		}
		return
	}
	_ = resp.WriteHeaderAndJson(http.StatusOK, result, restful.MIME_JSON)
}
