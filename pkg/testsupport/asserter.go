package testsupport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type tAsserter struct {
	t      testing.TB
	testID string
}

// TAsserter adapts a Go test. An empty testID uses the test name.
func TAsserter(t testing.TB, testID string) Asserter {
	if testID == "" {
		testID = t.Name()
	}
	return &tAsserter{t: t, testID: testID}
}

func (a *tAsserter) TestID() string { return a.testID }

func (a *tAsserter) Ok(pass bool, message string) {
	a.t.Helper()
	if assert.True(a.t, pass, message) {
		a.t.Log(message)
	}
}

func (a *tAsserter) Hold() {
	a.t.Logf("visual-test: %s is held in capture mode", a.testID)
}
