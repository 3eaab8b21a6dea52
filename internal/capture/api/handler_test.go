package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/internal/artifact"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver/drivertest"
	browserservice "github.com/babelcloud/gbox/packages/visual-test/internal/browser/service"
	"github.com/babelcloud/gbox/packages/visual-test/internal/capture/api"
	"github.com/babelcloud/gbox/packages/visual-test/internal/capture/service"
	apperrors "github.com/babelcloud/gbox/packages/visual-test/internal/common/errors"
	"github.com/babelcloud/gbox/packages/visual-test/internal/compare"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

type testServer struct {
	*httptest.Server
	launcher *drivertest.Launcher
	store    *artifact.Store
}

func pngOf(t *testing.T, w, h int, dark bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if dark && x < 5 && y < 5 {
				c = color.NRGBA{A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	data, err := compare.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Images: config.ImagesConfig{
			Directory:     filepath.Join(root, "baseline"),
			DiffDirectory: filepath.Join(root, "diff"),
			TmpDirectory:  filepath.Join(root, "tmp"),
		},
		Match:     config.MatchConfig{Threshold: 0.3, IncludeAA: true},
		GroupByOS: true,
		OS:        "linux",
		Window:    config.WindowConfig{Width: 1024, Height: 768},
		Browser:   config.BrowserConfig{ReadyTimeout: time.Second},
	}

	launcher := drivertest.NewLauncher(pngOf(t, 20, 20, false))
	browsers := browserservice.NewBrowserService(launcher, browserservice.Options{})
	t.Cleanup(func() { _ = browsers.Close() })
	store := artifact.New(cfg)
	svc := service.NewCaptureService(browsers, store, cfg)

	ws := new(restful.WebService)
	ws.Path("/visual-test").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	api.RegisterRoutes(ws, api.NewCaptureHandler(svc, store))
	container := restful.NewContainer()
	container.Add(ws)

	server := httptest.NewServer(container)
	t.Cleanup(server.Close)
	return &testServer{Server: server, launcher: launcher, store: store}
}

func (s *testServer) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.URL+path, restful.MIME_JSON, bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) *model.ComparisonResult {
	t.Helper()
	var result model.ComparisonResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return &result
}

func decodeError(t *testing.T, resp *http.Response) *apperrors.Error {
	t.Helper()
	var apiErr apperrors.Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	return &apiErr
}

func TestMakeScreenshotJSON(t *testing.T) {
	s := newTestServer(t)

	resp := s.postJSON(t, "/visual-test/make-screenshot", map[string]interface{}{
		"url":      "http://localhost:4200/tests?capture=true&fileName=home",
		"name":     "home",
		"fullPage": "true",
		"delayMs":  0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeResult(t, resp)
	assert.Equal(t, model.StatusSuccess, result.Status)
	assert.True(t, result.NewBaseline)

	page := s.launcher.Browsers()[0].Pages()[0]
	assert.Equal(t, []driver.ScreenshotOptions{{FullPage: true}}, page.Screenshots())
}

func TestMakeScreenshotForm(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{
		"url":         {"http://localhost:4200/tests"},
		"name":        {"forms/login"},
		"fullPage":    {"false"},
		"delayMs":     {"0"},
		"windowWidth": {"640"},
	}
	resp, err := http.PostForm(s.URL+"/visual-test/make-screenshot", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusSuccess, decodeResult(t, resp).Status)

	page := s.launcher.Browsers()[0].Pages()[0]
	assert.Equal(t, driver.Viewport{Width: 640, Height: 768}, page.Options.Viewport)
	asset, err := s.store.Resolve("forms/login")
	require.NoError(t, err)
	assert.True(t, s.store.Exists(asset.Baseline))
	assert.Equal(t, "forms/linux-login", asset.Name)
}

func TestMakeScreenshotMismatchIsStill200(t *testing.T) {
	s := newTestServer(t)
	asset, err := s.store.Resolve("home")
	require.NoError(t, err)
	require.NoError(t, s.store.Write(asset.Baseline, pngOf(t, 20, 20, false)))
	s.launcher.SetScreenshot(pngOf(t, 20, 20, true))

	resp := s.postJSON(t, "/visual-test/make-screenshot", map[string]interface{}{
		"url": "http://localhost:4200/", "name": "home", "delayMs": "0",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeResult(t, resp)
	assert.Equal(t, model.StatusError, result.Status)
	assert.Equal(t, 25, result.DiffPixelCount)
	assert.Contains(t, result.Error, "25 pixels differ - diff: ")
	assert.Equal(t, asset.Diff, result.DiffPath)
	assert.NotEmpty(t, result.FullDiffPath)
}

func TestMakeScreenshotLaunchFailureIsStill200(t *testing.T) {
	s := newTestServer(t)
	s.launcher.SetLaunchError(errors.New("chrome exited"))

	resp := s.postJSON(t, "/visual-test/make-screenshot", map[string]interface{}{
		"url": "http://localhost:4200/", "name": "home",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeResult(t, resp)
	assert.Equal(t, model.StatusError, result.Status)
	assert.True(t, result.ChromeError)
}

func TestMakeScreenshotBadRequests(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Post(s.URL+"/visual-test/make-screenshot", restful.MIME_JSON, strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, http.StatusBadRequest, decodeError(t, resp).Code)

	resp = s.postJSON(t, "/visual-test/make-screenshot", map[string]interface{}{"url": "http://localhost:4200/"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing parameter: name", decodeError(t, resp).Message)

	resp, err = http.PostForm(s.URL+"/visual-test/make-screenshot", url.Values{
		"url": {"http://x"}, "name": {"a"}, "delayMs": {"soon"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, 0, s.launcher.Launches())
}

func TestMakeScreenshotBodyLimit(t *testing.T) {
	s := newTestServer(t)

	huge := `{"url":"http://x","name":"a","selector":"` + strings.Repeat("x", api.MaxBodyBytes) + `"}`
	resp, err := http.Post(s.URL+"/visual-test/make-screenshot", restful.MIME_JSON, strings.NewReader(huge))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGetImage(t *testing.T) {
	s := newTestServer(t)
	asset, err := s.store.Resolve("nested/home")
	require.NoError(t, err)
	png := pngOf(t, 20, 20, false)
	require.NoError(t, s.store.Write(asset.Baseline, png))

	resp, err := http.Get(s.URL + "/visual-test/images/baseline/nested/linux-home")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, png, body)

	resp, err = http.Get(s.URL + "/visual-test/images/diff/nested/linux-home")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(s.URL + "/visual-test/images/other/home")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprove(t *testing.T) {
	s := newTestServer(t)

	resp := s.postJSON(t, "/visual-test/approve", model.ApproveParams{Name: "home"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	asset, err := s.store.Resolve("home")
	require.NoError(t, err)
	require.NoError(t, s.store.Write(asset.Temp, pngOf(t, 20, 20, true)))

	resp = s.postJSON(t, "/visual-test/approve", model.ApproveParams{Name: "home"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result model.ApproveResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "linux-home", result.Name)
	assert.True(t, s.store.Exists(asset.Baseline))

	resp = s.postJSON(t, "/visual-test/approve", model.ApproveParams{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
