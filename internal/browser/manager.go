// Package browser owns the headless browser process and its page pool. The
// Manager is the only component allowed to create or destroy sessions; all
// other code borrows pages through AcquirePage/ReleasePage.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Config holds browser lifecycle configuration.
type Config struct {
	Headless     bool
	BrowserPath  string
	WindowWidth  int
	WindowHeight int
	MaxPages     int
	IdleClose    time.Duration
	LaunchWait   time.Duration
}

// Page is one borrowed browser tab. The embedded context carries the
// chromedp target; it is valid until the owning browser generation dies.
type Page struct {
	Ctx        context.Context
	CreatedAt  time.Time
	LastUsedAt time.Time

	cancel context.CancelFunc
	gen    int
}

type launchOp struct {
	done chan struct{}
	err  error
}

// launchFunc starts a browser and returns its context plus a teardown func.
// newPageFunc opens a tab inside a running browser. Both are injectable so
// tests run without Chromium.
type launchFunc func(ctx context.Context) (context.Context, context.CancelFunc, error)
type newPageFunc func(browserCtx context.Context) (context.Context, context.CancelFunc, error)

// Manager lazily launches at most one browser process, recycles tabs up to
// the concurrency cap, relaunches after a crash, and closes the browser
// after a configurable idle period.
type Manager struct {
	cfg       Config
	launchFn  launchFunc
	newPageFn newPageFunc

	sem chan struct{}

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	launch        *launchOp
	gen           int
	pool          []*Page
	active        int
	idleTimer     *time.Timer
	shutdown      bool

	launches int // total successful launches, for tests and health output
}

// NewManager creates a Manager. The browser is not started until the first
// AcquirePage or WarmUp call.
func NewManager(cfg Config) *Manager {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1280
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 720
	}
	if cfg.LaunchWait <= 0 {
		cfg.LaunchWait = 30 * time.Second
	}
	m := &Manager{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxPages),
	}
	m.launchFn = m.chromedpLaunch
	m.newPageFn = m.chromedpNewPage
	return m
}

// NewManagerWithHooks creates a Manager with injected launch and page
// factories. Used by tests to model the browser lifecycle without Chromium.
func NewManagerWithHooks(cfg Config, launch launchFunc, newPage newPageFunc) *Manager {
	m := NewManager(cfg)
	if launch != nil {
		m.launchFn = launch
	}
	if newPage != nil {
		m.newPageFn = newPage
	}
	return m
}

// WarmUp forces the browser to start without borrowing a page.
func (m *Manager) WarmUp(ctx context.Context) error {
	return m.ensureBrowser(ctx)
}

// Up reports whether a browser process is currently running.
func (m *Manager) Up() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browserCtx != nil
}

// Launches returns how many times a browser has been started.
func (m *Manager) Launches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launches
}

// AcquirePage borrows a tab, blocking FIFO while the concurrency cap is
// saturated. The browser is launched on first use; a launch in progress is
// shared by all concurrent callers.
func (m *Manager) AcquirePage(ctx context.Context) (*Page, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	page, err := m.leasePage(ctx)
	if err != nil {
		<-m.sem
		return nil, err
	}
	return page, nil
}

func (m *Manager) leasePage(ctx context.Context) (*Page, error) {
	if err := m.ensureBrowser(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	for len(m.pool) > 0 {
		p := m.pool[len(m.pool)-1]
		m.pool = m.pool[:len(m.pool)-1]
		if p.gen == m.gen && p.Ctx.Err() == nil {
			m.active++
			p.LastUsedAt = time.Now()
			m.mu.Unlock()
			return p, nil
		}
		p.cancel()
	}
	browserCtx := m.browserCtx
	gen := m.gen
	m.mu.Unlock()

	if browserCtx == nil {
		return nil, fmt.Errorf("browser not running")
	}

	tabCtx, tabCancel, err := m.newPageFn(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	now := time.Now()
	p := &Page{Ctx: tabCtx, cancel: tabCancel, gen: gen, CreatedAt: now, LastUsedAt: now}

	m.mu.Lock()
	m.active++
	m.mu.Unlock()
	slog.Debug("browser page opened", "gen", gen)
	return p, nil
}

// ReleasePage returns a borrowed page to the pool. Pages from a dead browser
// generation are discarded. Safe to call with nil.
func (m *Manager) ReleasePage(p *Page) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.active--
	p.LastUsedAt = time.Now()
	if p.gen == m.gen && m.browserCtx != nil && p.Ctx.Err() == nil {
		m.pool = append(m.pool, p)
	} else {
		p.cancel()
	}
	if m.active == 0 && m.cfg.IdleClose > 0 && m.browserCtx != nil {
		m.armIdleTimerLocked()
	}
	m.mu.Unlock()
	<-m.sem
}

func (m *Manager) armIdleTimerLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	gen := m.gen
	m.idleTimer = time.AfterFunc(m.cfg.IdleClose, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen || m.active > 0 || m.browserCtx == nil {
			return
		}
		slog.Info("closing idle browser", "idle", m.cfg.IdleClose.String())
		m.resetLocked()
	})
}

// ensureBrowser launches the browser if needed. Concurrent callers during a
// launch share the same in-flight operation; a failed launch clears the
// guard so the next call retries.
func (m *Manager) ensureBrowser(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return fmt.Errorf("browser manager is shut down")
	}
	if m.browserCtx != nil {
		m.mu.Unlock()
		return nil
	}
	if m.launch == nil {
		op := &launchOp{done: make(chan struct{})}
		m.launch = op
		go m.runLaunch(op)
	}
	op := m.launch
	m.mu.Unlock()

	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) runLaunch(op *launchOp) {
	launchCtx, cancel := context.WithTimeout(context.Background(), m.cfg.LaunchWait)
	defer cancel()

	browserCtx, teardown, err := m.launchFn(launchCtx)

	m.mu.Lock()
	m.launch = nil
	if err != nil {
		m.mu.Unlock()
		slog.Error("browser launch failed", "error", err)
		op.err = fmt.Errorf("launch browser: %w", err)
		close(op.done)
		return
	}
	m.browserCtx = browserCtx
	m.browserCancel = teardown
	m.launches++
	gen := m.gen
	m.mu.Unlock()

	slog.Info("browser launched", "headless", m.cfg.Headless, "max_pages", m.cfg.MaxPages)
	go m.watch(browserCtx, gen)
	close(op.done)
}

// watch observes the browser context; termination means the process crashed
// or was closed, so state is cleared and the next acquire relaunches.
func (m *Manager) watch(browserCtx context.Context, gen int) {
	<-browserCtx.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.browserCtx == nil {
		return
	}
	slog.Warn("browser disconnected, clearing session state")
	m.resetLocked()
}

func (m *Manager) resetLocked() {
	for _, p := range m.pool {
		p.cancel()
	}
	m.pool = nil
	if m.browserCancel != nil {
		m.browserCancel()
	}
	m.browserCtx = nil
	m.browserCancel = nil
	m.gen++
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

// Shutdown closes the browser and stops the manager for good.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
	m.resetLocked()
}

// Close shuts the browser down but leaves the manager usable; the next
// acquire relaunches. Used by the debug close endpoint.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Manager) chromedpLaunch(ctx context.Context) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.WindowSize(m.cfg.WindowWidth, m.cfg.WindowHeight),
		chromedp.NoFirstRun,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-crash-reporter", true),
	)
	execPath := m.cfg.BrowserPath
	if execPath == "" {
		detected, err := detectBrowser()
		if err != nil {
			return nil, nil, err
		}
		execPath = detected
	}
	opts = append(opts, chromedp.ExecPath(execPath))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the process and blocks until CDP is ready.
	// The deadline comes from the caller's launch context.
	startWait := m.cfg.LaunchWait
	if dl, ok := ctx.Deadline(); ok {
		startWait = time.Until(dl)
	}
	runCtx, runCancel := context.WithTimeout(browserCtx, startWait)
	defer runCancel()
	if err := chromedp.Run(runCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, err
	}

	teardown := func() {
		browserCancel()
		allocCancel()
	}
	return browserCtx, teardown, nil
}

func (m *Manager) chromedpNewPage(browserCtx context.Context) (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, nil, err
	}
	return tabCtx, tabCancel, nil
}
