package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// RegisterBrowserRoutes adds the browser API routes to the web service.
func RegisterBrowserRoutes(ws *restful.WebService, handler *Handler) {
	ws.Route(ws.GET("/browser").To(handler.GetStatus).
		Doc("get the state of the shared browser session").
		Returns(http.StatusOK, "OK", model.BrowserStatus{}))
}
