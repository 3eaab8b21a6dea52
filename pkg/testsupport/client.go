package testsupport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// CapturePath is the server route that takes screenshots
const CapturePath = "/visual-test/make-screenshot"

// ErrCaptureSuspended is returned by Capture in capture mode once the
// harness cancels the context. The test must not treat it as a failure.
var ErrCaptureSuspended = errors.New("visual-test: capture mode suspended the test")

var log = logger.New()

// Asserter is the assertion framework of the running test
type Asserter interface {
	// TestID identifies the running test
	TestID() string
	// Ok records a passing or failing assertion
	Ok(pass bool, message string)
	// Hold tells the framework the test will not finish on its own and
	// is torn down externally.
	Hold()
}

// Page is the page under test
type Page interface {
	Location() *url.URL
	Document() Document
}

// Document is the DOM of the page under test
type Document interface {
	AddBodyClass(class string)
	DispatchEvent(name string)
	HasElement(id string) bool
	AppendElement(id string)
}

// Options tune a single capture
type Options struct {
	Selector     string
	FullPage     bool
	DelayMs      int
	WindowWidth  int
	WindowHeight int
}

// Option customises a capture
type Option func(*Options)

// WithSelector captures the first element matching selector only
func WithSelector(selector string) Option {
	return func(o *Options) { o.Selector = selector }
}

// WithFullPage switches between full page and viewport captures
func WithFullPage(fullPage bool) Option {
	return func(o *Options) { o.FullPage = fullPage }
}

// WithDelay waits ms milliseconds after the page signaled readiness
func WithDelay(ms int) Option {
	return func(o *Options) { o.DelayMs = ms }
}

// WithViewport sets the browser window size for this capture
func WithViewport(width, height int) Option {
	return func(o *Options) {
		o.WindowWidth = width
		o.WindowHeight = height
	}
}

func defaultOptions() Options {
	return Options{FullPage: true, DelayMs: model.DefaultDelayMs}
}

// Client talks to the capture endpoint
type Client struct {
	// Endpoint is the server base URL, e.g. http://localhost:7357. When
	// empty the origin of the page under test is used.
	Endpoint   string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at endpoint
func NewClient(endpoint string) *Client {
	return &Client{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Capture runs one visual check of page under the given name. In
// assertion mode it returns the server's result after reporting it to a.
// In capture mode it returns nil, nil when the capture targets another
// name, or blocks until ctx is done and returns ErrCaptureSuspended.
func (c *Client) Capture(ctx context.Context, a Asserter, page Page, fileName string, opts ...Option) (*model.ComparisonResult, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	loc := page.Location()
	query := loc.Query()
	if query.Get("capture") == "true" {
		// Several captures may share one test; only the requested one proceeds
		if !slices.Contains(query["fileName"], fileName) {
			return nil, nil
		}
		PrepareCaptureMode(page.Document())
		a.Hold()
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", ErrCaptureSuspended, ctx.Err())
	}

	result, err := c.RequestCapture(ctx, c.endpoint(loc), CaptureURL(loc, a.TestID(), fileName), fileName, o)
	if err != nil {
		// An unparsable success body is still a failed comparison
		var rawErr *RawResponseError
		if errors.As(err, &rawErr) {
			a.Ok(false, fmt.Sprintf("visual-test: %s has changed: %s", fileName, rawErr.Body))
		}
		return nil, err
	}
	if result.Passed() {
		a.Ok(true, fmt.Sprintf("visual-test: %s has not changed", fileName))
	} else {
		a.Ok(false, fmt.Sprintf("visual-test: %s has changed: %s", fileName, result.Error))
	}
	return result, nil
}

func (c *Client) endpoint(loc *url.URL) string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return loc.Scheme + "://" + loc.Host
}

// CaptureURL builds the URL the browser loads to photograph fileName
func CaptureURL(loc *url.URL, testID, fileName string) string {
	params := []string{
		"testId=" + url.QueryEscape(testID),
		"devmode",
		"fileName=" + url.QueryEscape(fileName),
		"capture=true",
	}
	return loc.Scheme + "://" + loc.Host + loc.Path + "?" + strings.Join(params, "&")
}

// PrepareCaptureMode marks the document as ready to be photographed
func PrepareCaptureMode(doc Document) {
	doc.AddBodyClass(config.CaptureModeClass)
	doc.DispatchEvent(config.PageLoadedEvent)
	if !doc.HasElement(config.ReadyElementID) {
		doc.AppendElement(config.ReadyElementID)
	}
}

// RequestCapture posts a capture request for pageURL to the server at endpoint
func (c *Client) RequestCapture(ctx context.Context, endpoint, pageURL, fileName string, o Options) (*model.ComparisonResult, error) {
	params := model.CaptureParams{
		URL:      pageURL,
		Name:     Dasherize(fileName),
		Selector: o.Selector,
		FullPage: model.Bool(o.FullPage),
		DelayMs:  model.Int(o.DelayMs),
	}
	if o.WindowWidth > 0 {
		params.WindowWidth = model.Int(o.WindowWidth)
	}
	if o.WindowHeight > 0 {
		params.WindowHeight = model.Int(o.WindowHeight)
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capture request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+CapturePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send capture request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respErr := &ResponseError{StatusCode: resp.StatusCode, Raw: string(raw)}
		if json.Unmarshal(raw, &respErr.Body) != nil {
			respErr.Body = nil
		}
		log.Debug("Couldn't post data, response is: %s", respErr.Raw)
		return nil, respErr
	}

	var result model.ComparisonResult
	if err := json.Unmarshal(raw, &result); err != nil {
		log.Debug("Got an error parsing the capture response: %v", err)
		return nil, &RawResponseError{StatusCode: resp.StatusCode, Body: string(raw), Err: err}
	}
	return &result, nil
}
