package format

import (
	"github.com/fatih/color"

	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
)

// APIEndpoint represents an API endpoint
type APIEndpoint struct {
	Method      string
	Path        string
	Description string
}

// FormatHTTPMethod returns a colored and bold HTTP method string
func FormatHTTPMethod(method string) string {
	switch method {
	case "GET":
		return color.New(color.Bold, color.FgGreen).Sprint(method)
	case "POST":
		return color.New(color.Bold, color.FgYellow).Sprint(method)
	case "PUT":
		return color.New(color.Bold, color.FgBlue).Sprint(method)
	case "DELETE":
		return color.New(color.Bold, color.FgRed).Sprint(method)
	default:
		return color.New(color.Bold).Sprint(method)
	}
}

// FormatDriver returns a colored banner naming the browser driver in use
func FormatDriver(driver string) string {
	green := color.New(color.FgGreen)
	return green.Sprint("Starting visual-test server with ") +
		color.New(color.Bold, color.FgCyan).Sprint(driver) +
		green.Sprint(" driver...")
}

// FormatStatus colors a comparison status for terminal output
func FormatStatus(status string) string {
	if status == "SUCCESS" {
		return color.New(color.Bold, color.FgGreen).Sprint(status)
	}
	return color.New(color.Bold, color.FgRed).Sprint(status)
}

// LogAPIEndpoint logs an API endpoint with consistent formatting
func LogAPIEndpoint(logger *logger.Logger, endpoint APIEndpoint) {
	// Using tabs for alignment since ANSI color codes don't affect tab stops
	logger.Info("  %s\t\t%s\t\t%s",
		FormatHTTPMethod(endpoint.Method),
		endpoint.Path,
		endpoint.Description,
	)
}

// LogAPIEndpoints logs a header and a list of API endpoints
func LogAPIEndpoints(logger *logger.Logger, endpoints []APIEndpoint) {
	logger.Info("API endpoints:")
	for _, endpoint := range endpoints {
		LogAPIEndpoint(logger, endpoint)
	}
}
