package drivertest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver/drivertest"
)

func TestPageForwardsConsoleToEveryHandler(t *testing.T) {
	ctx := context.Background()
	launcher := drivertest.NewLauncher([]byte("png"))
	launcher.SetBehavior(drivertest.PageBehavior{Console: []string{"log: one", "warn: two"}})

	b, err := launcher.Launch(ctx, driver.LaunchOptions{})
	require.NoError(t, err)
	page, err := b.NewPage(ctx, driver.PageOptions{})
	require.NoError(t, err)

	var first, second []string
	page.OnConsole(func(msg string) { first = append(first, msg) })
	page.OnConsole(func(msg string) { second = append(second, msg) })

	require.NoError(t, page.Navigate(ctx, "http://localhost/tests"))
	assert.Equal(t, []string{"log: one", "warn: two"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"navigate http://localhost/tests"}, page.(*drivertest.Page).Calls())
}

func TestPageRecordsCalls(t *testing.T) {
	ctx := context.Background()
	launcher := drivertest.NewLauncher([]byte("png"))
	b, err := launcher.Launch(ctx, driver.LaunchOptions{})
	require.NoError(t, err)
	page, err := b.NewPage(ctx, driver.PageOptions{})
	require.NoError(t, err)

	require.NoError(t, page.WaitForSelector(ctx, "#ready"))
	data, err := page.Screenshot(ctx, driver.ScreenshotOptions{FullPage: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	require.NoError(t, page.Close())

	fake := page.(*drivertest.Page)
	assert.Equal(t, []string{"wait #ready", "screenshot", "close"}, fake.Calls())
	assert.True(t, fake.Closed())
	assert.Equal(t, []driver.ScreenshotOptions{{FullPage: true}}, fake.Screenshots())
}
