// Package testsupport lets test suites request visual captures from a
// running visual-test server.
//
// A test calls Capture with the page it has just rendered. In assertion
// mode the helper asks the server to load the same page in a browser with
// capture=true and fileName=<name>, waits for the comparison and reports
// the outcome through the Asserter. When the browser opens that URL the
// same test runs again, this time in capture mode: Capture marks the DOM
// as ready for the screenshot and holds the test until the harness tears
// it down.
package testsupport
