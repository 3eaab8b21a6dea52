package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver/drivertest"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/service"
)

func newService(t *testing.T, launcher *drivertest.Launcher) *service.BrowserService {
	t.Helper()
	svc := service.NewBrowserService(launcher, service.Options{
		Launch: driver.LaunchOptions{Headless: true, NoSandbox: true, Flags: []string{"--enable-logging"}},
	})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestBrowserIsLaunchedLazily(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	svc := newService(t, launcher)

	assert.Equal(t, service.StateUninitialized, svc.State())
	assert.Equal(t, 0, launcher.Launches())

	_, err := svc.Browser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, service.StateReady, svc.State())
	assert.Equal(t, 1, launcher.Launches())
	assert.True(t, launcher.LastOptions().NoSandbox)
}

func TestBrowserIsReused(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	svc := newService(t, launcher)

	first, err := svc.Browser(context.Background())
	require.NoError(t, err)
	second, err := svc.Browser(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, launcher.Launches())
}

func TestConcurrentFirstUseLaunchesOnce(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	launcher.Delay = 50 * time.Millisecond
	svc := newService(t, launcher)

	const callers = 16
	browsers := make([]driver.Browser, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			browsers[i], errs[i] = svc.Browser(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, launcher.Launches())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, browsers[0], browsers[i])
	}
}

func TestLaunchFailureReturnsToUninitialized(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	launcher.SetLaunchError(errors.New("chrome not found"))
	svc := newService(t, launcher)

	_, err := svc.Browser(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrLaunchFailed)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Equal(t, service.StateUninitialized, svc.State())

	// the next request retries
	launcher.SetLaunchError(nil)
	_, err = svc.Browser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, service.StateReady, svc.State())
	assert.Equal(t, 2, launcher.Launches())
}

func TestDisconnectedBrowserIsRelaunched(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	svc := newService(t, launcher)

	_, err := svc.Browser(context.Background())
	require.NoError(t, err)
	launcher.Browsers()[0].Disconnect()

	_, err = svc.Browser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, launcher.Launches())
}

func TestWaiterCancellationDoesNotAbortLaunch(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	launcher.Delay = 100 * time.Millisecond
	svc := newService(t, launcher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.Browser(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	b, err := svc.Browser(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, 1, launcher.Launches())
}

func TestOpenAndClosePage(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	svc := newService(t, launcher)

	opts := driver.PageOptions{Viewport: driver.Viewport{Width: 800, Height: 600}}
	first, err := svc.OpenPage(context.Background(), opts)
	require.NoError(t, err)
	second, err := svc.OpenPage(context.Background(), opts)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, svc.PageCount())
	assert.Equal(t, 1, launcher.Launches())
	assert.Equal(t, opts, first.Instance.(*drivertest.Page).Options)

	require.NoError(t, svc.ClosePage(first.ID))
	assert.True(t, first.Instance.(*drivertest.Page).Closed())
	assert.Equal(t, 1, svc.PageCount())
	assert.True(t, launcher.Browsers()[0].Connected(), "closing a page keeps the browser")

	assert.ErrorIs(t, svc.ClosePage(first.ID), service.ErrPageNotFound)
}

func TestCloseShutsDownBrowser(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	svc := newService(t, launcher)

	page, err := svc.OpenPage(context.Background(), driver.PageOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.True(t, page.Instance.(*drivertest.Page).Closed())
	assert.False(t, launcher.Browsers()[0].Connected())
	assert.Equal(t, service.StateUninitialized, svc.State())

	_, err = svc.OpenPage(context.Background(), driver.PageOptions{})
	assert.ErrorIs(t, err, service.ErrServiceClosed)
	assert.NoError(t, svc.Close())
}

func TestConsoleForwarding(t *testing.T) {
	launcher := drivertest.NewLauncher(nil)
	launcher.SetBehavior(drivertest.PageBehavior{Console: []string{"log: hello"}})
	svc := service.NewBrowserService(launcher, service.Options{ConsoleLogging: true})
	defer svc.Close()

	page, err := svc.OpenPage(context.Background(), driver.PageOptions{})
	require.NoError(t, err)
	// the handler logs; navigating must not panic or block
	require.NoError(t, page.Instance.Navigate(context.Background(), "http://localhost"))
}
