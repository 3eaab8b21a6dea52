package testsupport

import (
	"regexp"
	"strings"
)

var (
	decamelizeRe = regexp.MustCompile(`([a-z\d])([A-Z])`)
	dashRe       = regexp.MustCompile(`[ _]`)
)

// Dasherize turns "myPage/loginForm done" into "my-page/login-form-done".
// Path separators are kept so names can still group images in directories.
func Dasherize(name string) string {
	return dashRe.ReplaceAllString(strings.ToLower(decamelizeRe.ReplaceAllString(name, "${1}_${2}")), "-")
}
