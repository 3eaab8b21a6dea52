package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emicklei/go-restful/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/api"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver/drivertest"
	browserSvc "github.com/babelcloud/gbox/packages/visual-test/internal/browser/service"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

func TestGetStatus(t *testing.T) {
	svc := browserSvc.NewBrowserService(drivertest.NewLauncher(nil), browserSvc.Options{})
	defer svc.Close()

	ws := new(restful.WebService)
	ws.Path("/visual-test").Produces(restful.MIME_JSON)
	api.RegisterBrowserRoutes(ws, api.NewHandler(svc, "playwright"))
	container := restful.NewContainer()
	container.Add(ws)

	get := func() model.BrowserStatus {
		rec := httptest.NewRecorder()
		container.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/visual-test/browser", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var status model.BrowserStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		return status
	}

	assert.Equal(t, model.BrowserStatus{Driver: "playwright", State: "uninitialized"}, get())

	_, err := svc.OpenPage(context.Background(), driver.PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.BrowserStatus{Driver: "playwright", State: "ready", Pages: 1, Launches: 1}, get())
}
