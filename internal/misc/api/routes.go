package api

import (
	"github.com/emicklei/go-restful/v3"

	"github.com/babelcloud/gbox/packages/visual-test/internal/misc/model"
)

// RegisterRoutes registers the miscellaneous routes
func RegisterRoutes(ws *restful.WebService, handler *MiscHandler) {
	ws.Route(ws.GET("/version").To(handler.GetVersion).
		Doc("get server version information").
		Returns(200, "OK", model.VersionInfo{}))
}
