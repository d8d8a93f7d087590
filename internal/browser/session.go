package browser

import (
	"context"
	"fmt"
	"sync"

	"platewatch/internal/components/assert"
	"platewatch/internal/components/telemetry"
)

const DefaultMaxUsage = 50

const (
	report_session_launch   = "session.launch"
	report_session_release  = "session.release"
	report_session_teardown = "session.teardown"
	report_session_usage    = "session.usage"
)

// Browser is a running browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// Connected is false once the process has exited or the connection to it
	// was lost.
	Connected() bool
	Close() error
}

// Launcher starts browser processes.
//
// note: fault injection point
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Manager owns the single browser used by the pipeline. The browser is
// launched lazily and torn down after MaxUsage runs to bound the memory held
// by a long-lived browser process.
type Manager struct {
	launcher Launcher
	maxUsage int
	tel      telemetry.API

	mu       sync.Mutex
	browser  Browser
	page     Page
	usage    int
	launches int
}

func NewManager(launcher Launcher, maxUsage int, tel telemetry.API) *Manager {
	assert.NotNil(launcher)
	assert.NotNil(tel)
	if maxUsage <= 0 {
		maxUsage = DefaultMaxUsage
	}
	return &Manager{
		launcher: launcher,
		maxUsage: maxUsage,
		tel:      telemetry.NewScopedAPI("browser", tel),
	}
}

// Acquire returns the live browser, launching a new one if there is none or
// the current one has disconnected.
func (m *Manager) Acquire(ctx context.Context) (Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquire(ctx)
}

func (m *Manager) acquire(ctx context.Context) (Browser, error) {
	if m.browser != nil && m.browser.Connected() {
		return m.browser, nil
	}
	if m.browser != nil {
		m.tel.ReportWarning(report_session_launch, "browser disconnected, relaunching")
		m.teardown()
	}

	b, err := m.launcher.Launch(ctx)
	if err != nil {
		m.tel.ReportBroken(report_session_launch, err)
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	m.browser = b
	m.usage = 0
	m.launches++
	m.tel.ReportDebug("launched browser", m.launches)
	return b, nil
}

// OpenPage acquires the browser and opens a tab on it, the tab is tracked so
// that Release can close it.
func (m *Manager) OpenPage(ctx context.Context) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if m.page != nil {
		m.releasePage()
	}
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	m.page = page
	return page, nil
}

// Release closes the tracked tab, the browser stays up.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releasePage()
}

func (m *Manager) releasePage() {
	if m.page == nil {
		return
	}
	err := m.page.Close()
	if err != nil {
		m.tel.ReportWarning(report_session_release, err)
	}
	m.page = nil
}

// MarkUse counts a finished run, the browser is torn down once the count
// reaches the ceiling so the next Acquire starts a fresh process.
func (m *Manager) MarkUse() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return
	}
	m.usage++
	m.tel.ReportCount(report_session_usage, int64(m.usage))
	if m.usage >= m.maxUsage {
		m.tel.ReportDebug("usage ceiling reached, restarting browser", m.usage)
		m.teardown()
	}
}

// Shutdown closes the tab and the browser, it is safe to call any number of
// times and when nothing was ever launched.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil
	}
	return m.teardown()
}

func (m *Manager) teardown() error {
	m.releasePage()
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		if err != nil {
			m.tel.ReportWarning(report_session_teardown, err)
		}
	}
	m.browser = nil
	m.usage = 0
	return err
}

// Usage is the number of runs counted against the current browser.
func (m *Manager) Usage() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Launches is the number of browsers started so far.
func (m *Manager) Launches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launches
}
