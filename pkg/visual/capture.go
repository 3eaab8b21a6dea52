package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultDelayMs is the settle time applied when a request does not set one
const DefaultDelayMs = 100

// Status of a comparison
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// CaptureParams is the body of POST /visual-test/make-screenshot.
// Numbers and booleans may arrive either as JSON values or as strings.
type CaptureParams struct {
	URL          string    `json:"url"`
	Name         string    `json:"name"`
	Selector     string    `json:"selector,omitempty"`
	FullPage     *FlexBool `json:"fullPage,omitempty"`
	DelayMs      *FlexInt  `json:"delayMs,omitempty"`
	WindowWidth  *FlexInt  `json:"windowWidth,omitempty"`
	WindowHeight *FlexInt  `json:"windowHeight,omitempty"`
}

// Validate checks the required fields
func (p *CaptureParams) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("missing parameter: url")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("missing parameter: name")
	}
	return nil
}

// Delay returns delayMs or the default
func (p *CaptureParams) Delay() int {
	if p.DelayMs == nil || *p.DelayMs < 0 {
		return DefaultDelayMs
	}
	return int(*p.DelayMs)
}

// IsFullPage returns fullPage, false when unset
func (p *CaptureParams) IsFullPage() bool {
	return p.FullPage != nil && bool(*p.FullPage)
}

// Viewport returns the requested window size; zero values mean "use the default"
func (p *CaptureParams) Viewport() (width, height int) {
	if p.WindowWidth != nil {
		width = int(*p.WindowWidth)
	}
	if p.WindowHeight != nil {
		height = int(*p.WindowHeight)
	}
	return width, height
}

// ComparisonResult is the response body of a capture request
type ComparisonResult struct {
	Status         Status `json:"status"`
	NewBaseline    bool   `json:"newBaseline"`
	DiffPixelCount int    `json:"diffPixelCount"`
	DiffPath       string `json:"diffPath,omitempty"`
	FullDiffPath   string `json:"fullDiffPath,omitempty"`
	TmpPath        string `json:"tmpPath,omitempty"`
	ChromeError    bool   `json:"chromeError,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Passed reports whether the capture matched its baseline
func (r *ComparisonResult) Passed() bool {
	return r != nil && r.Status == StatusSuccess
}

// ApproveParams is the body of POST /visual-test/approve
type ApproveParams struct {
	Name string `json:"name"`
}

// ApproveResult is returned after promoting a temp image to baseline
type ApproveResult struct {
	Name     string `json:"name"`
	Baseline string `json:"baseline"`
}

// FlexBool accepts true/false as JSON booleans or strings
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*b = FlexBool(v)
	case string:
		parsed, err := ParseBool(v)
		if err != nil {
			return err
		}
		*b = FlexBool(parsed)
	case float64:
		*b = v != 0
	default:
		return fmt.Errorf("invalid boolean value: %s", string(data))
	}
	return nil
}

// ParseBool understands the loose values browsers send in forms
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes":
		return true, nil
	case "false", "0", "off", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %q", s)
}

// FlexInt accepts integers as JSON numbers or strings
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*i = FlexInt(int(v))
	case string:
		parsed, err := ParseInt(v)
		if err != nil {
			return err
		}
		*i = FlexInt(parsed)
	default:
		return fmt.Errorf("invalid integer value: %s", string(data))
	}
	return nil
}

// ParseInt parses a decimal integer, ignoring surrounding whitespace
func ParseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value: %q", s)
	}
	return n, nil
}

// Bool returns a *FlexBool for v
func Bool(v bool) *FlexBool {
	b := FlexBool(v)
	return &b
}

// Int returns a *FlexInt for v
func Int(v int) *FlexInt {
	i := FlexInt(v)
	return &i
}
