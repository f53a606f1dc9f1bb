package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// Pool manages one headless browser process and hands out authenticated tab
// sessions, at most maxSessions concurrently.
type Pool struct {
	config      common.BrowserConfig
	logger      arbor.ILogger
	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserCancel context.CancelFunc
	slots       chan struct{}
	limiters    map[string]*rate.Limiter
	initialized bool
}

// NewPool creates an uninitialized pool. Call Init before Acquire.
func NewPool(config common.BrowserConfig, maxSessions int, logger arbor.ILogger) *Pool {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Pool{
		config:   config,
		logger:   logger,
		slots:    make(chan struct{}, maxSessions),
		limiters: map[string]*rate.Limiter{},
	}
}

var _ interfaces.BrowserPool = (*Pool)(nil)

// Init launches the browser process and verifies it responds.
func (p *Pool) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("browser pool already initialized")
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.initialized = true

	p.logger.Info().
		Int("max_sessions", cap(p.slots)).
		Bool("headless", p.config.Headless).
		Msg("Browser pool initialized")
	return nil
}

// Acquire blocks for a free tab slot, opens a tab, and logs in through the
// plugin. The returned session must be released by the caller.
func (p *Pool) Acquire(ctx context.Context, tenant *models.Tenant, creds models.Credentials, plugin interfaces.ScraperPlugin) (interfaces.Session, error) {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool not initialized")
	}
	browserCtx := p.browserCtx
	limiter := p.limiterFor(tenant.ID)
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	tempDir, err := os.MkdirTemp("", "conectasei-session-*")
	if err != nil {
		tabCancel()
		<-p.slots
		return nil, fmt.Errorf("failed to create session temp dir: %w", err)
	}

	session := &Session{
		ctx:        tabCtx,
		cancel:     tabCancel,
		tempDir:    tempDir,
		navTimeout: p.config.NavTimeout,
		limiter:    limiter,
		pool:       p,
		logger:     p.logger,
	}
	session.installDialogHandler()

	if err := plugin.Login(session, tenant.UpstreamURL, creds); err != nil {
		session.Release()
		return nil, err
	}

	p.logger.Debug().
		Str("tenant_id", tenant.ID).
		Str("plugin", plugin.Version()).
		Msg("Browser session acquired")
	return session, nil
}

// limiterFor returns the per-tenant navigation limiter, creating it on
// first use. Must be called with the pool mutex held.
func (p *Pool) limiterFor(tenantID string) *rate.Limiter {
	limiter, ok := p.limiters[tenantID]
	if !ok {
		every := p.config.NavDelay
		if every <= 0 {
			every = time.Millisecond
		}
		limiter = rate.NewLimiter(rate.Every(every), 1)
		p.limiters[tenantID] = limiter
	}
	return limiter
}

// Close shuts down the browser process. Active sessions are cancelled.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.initialized = false
	p.logger.Info().Msg("Browser pool shut down")
	return nil
}
