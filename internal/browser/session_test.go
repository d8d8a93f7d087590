package browser

import (
	"context"
	"errors"
	"testing"

	"platewatch/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

type stubPage struct {
	Page
	closed int
}

func (p *stubPage) Close() error {
	p.closed++
	return nil
}

type stubBrowser struct {
	id        int
	connected bool
	closed    int
	pages     []*stubPage
}

func (b *stubBrowser) NewPage(context.Context) (Page, error) {
	p := &stubPage{}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *stubBrowser) Connected() bool {
	return b.connected
}

func (b *stubBrowser) Close() error {
	b.closed++
	b.connected = false
	return nil
}

type stubLauncher struct {
	launched []*stubBrowser
	fail     error
}

func (l *stubLauncher) Launch(context.Context) (Browser, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	b := &stubBrowser{id: len(l.launched) + 1, connected: true}
	l.launched = append(l.launched, b)
	return b, nil
}

func TestManagerRestartsAfterMaxUsage(t *testing.T) {
	ctx := context.Background()
	launcher := &stubLauncher{}
	m := NewManager(launcher, 2, telemetry.NewRecorder())

	first, err := m.Acquire(ctx)
	require.NoError(t, err)
	again, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, first, again)

	m.MarkUse()
	require.Equal(t, 1, m.Usage())
	m.MarkUse()
	require.Equal(t, 0, m.Usage())
	require.Equal(t, 1, launcher.launched[0].closed)

	second, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Len(t, launcher.launched, 2)
	require.Equal(t, 2, m.Launches())
}

func TestManagerRelaunchesDisconnected(t *testing.T) {
	ctx := context.Background()
	launcher := &stubLauncher{}
	m := NewManager(launcher, 50, telemetry.NewRecorder())

	_, err := m.Acquire(ctx)
	require.NoError(t, err)
	launcher.launched[0].connected = false

	b, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, b.(*stubBrowser).id)
}

func TestManagerPages(t *testing.T) {
	ctx := context.Background()
	launcher := &stubLauncher{}
	m := NewManager(launcher, 50, telemetry.NewRecorder())

	page, err := m.OpenPage(ctx)
	require.NoError(t, err)
	m.Release()
	require.Equal(t, 1, page.(*stubPage).closed)
	m.Release()
	require.Equal(t, 1, page.(*stubPage).closed)

	// opening a page while one is tracked closes the stale one
	p1, err := m.OpenPage(ctx)
	require.NoError(t, err)
	_, err = m.OpenPage(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p1.(*stubPage).closed)
	require.Len(t, launcher.launched, 1)
}

func TestManagerShutdownIsIdempotent(t *testing.T) {
	ctx := context.Background()
	launcher := &stubLauncher{}
	m := NewManager(launcher, 50, telemetry.NewRecorder())

	require.NoError(t, m.Shutdown())

	page, err := m.OpenPage(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())

	require.Equal(t, 1, page.(*stubPage).closed)
	require.Equal(t, 1, launcher.launched[0].closed)

	// MarkUse without a browser does nothing
	m.MarkUse()
	require.Equal(t, 0, m.Usage())
}

func TestManagerLaunchFailure(t *testing.T) {
	tel := telemetry.NewRecorder()
	launcher := &stubLauncher{fail: errors.New("chrome not found")}
	m := NewManager(launcher, 50, tel)

	_, err := m.OpenPage(context.Background())
	require.Error(t, err)
	require.True(t, tel.HasBroken(report_session_launch))
}

func TestBuildAllocatorOptions(t *testing.T) {
	opts := DefaultChromeOptions()
	base := len(BuildAllocatorOptions(ChromeOptions{Headless: true}))

	opts.ExecPath = "/usr/bin/chromium"
	opts.UserAgent = "platewatch"
	require.Equal(t, base+3, len(BuildAllocatorOptions(opts)))
}
