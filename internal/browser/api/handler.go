package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	browserSvc "github.com/babelcloud/gbox/packages/visual-test/internal/browser/service"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// Handler exposes the state of the shared browser session
type Handler struct {
	service *browserSvc.BrowserService
	driver  string
}

// NewHandler creates a new API handler for the browser service.
func NewHandler(svc *browserSvc.BrowserService, driver string) *Handler {
	if svc == nil {
		panic("BrowserService cannot be nil")
	}
	return &Handler{service: svc, driver: driver}
}

// GetStatus handles GET /visual-test/browser
func (h *Handler) GetStatus(req *restful.Request, resp *restful.Response) {
	status := model.BrowserStatus{
		Driver:   h.driver,
		State:    h.service.State().String(),
		Pages:    h.service.PageCount(),
		Launches: h.service.LaunchCount(),
	}
	_ = resp.WriteHeaderAndJson(http.StatusOK, status, restful.MIME_JSON)
}
