package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	apperrors "github.com/babelcloud/gbox/packages/visual-test/internal/common/errors"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// RegisterRoutes registers the capture routes
func RegisterRoutes(ws *restful.WebService, handler *CaptureHandler) {
	ws.Route(ws.POST("/make-screenshot").To(handler.MakeScreenshot).
		Doc("capture a page and compare it to its baseline").
		Consumes(restful.MIME_JSON, mimeForm).
		Reads(model.CaptureParams{}).
		Returns(http.StatusOK, "OK", model.ComparisonResult{}).
		Returns(http.StatusBadRequest, "Bad Request", apperrors.Error{}).
		Returns(http.StatusRequestEntityTooLarge, "Request Entity Too Large", apperrors.Error{}))

	ws.Route(ws.GET("/images/{kind}/{name:*}").To(handler.GetImage).
		Doc("download a baseline, tmp or diff image").
		Param(ws.PathParameter("kind", "baseline, tmp or diff").DataType("string")).
		Param(ws.PathParameter("name", "resolved image name, without .png").DataType("string")).
		Produces("image/png", restful.MIME_JSON).
		Returns(http.StatusOK, "OK", nil).
		Returns(http.StatusNotFound, "Not Found", apperrors.Error{}))

	ws.Route(ws.POST("/approve").To(handler.Approve).
		Doc("accept the latest capture of a name as its baseline").
		Reads(model.ApproveParams{}).
		Returns(http.StatusOK, "OK", model.ApproveResult{}).
		Returns(http.StatusNotFound, "Not Found", apperrors.Error{}))
}
