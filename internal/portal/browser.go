// Package portal drives the SERFF Filing Access portal through a headless
// Chrome session: search, result paging, filing detail harvest, and document
// download. All exported navigation calls classify their failures so the
// orchestrator can decide between retry, restart, and skip.
package portal

import (
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/config"
)

// Browser owns one headless Chrome instance. It is restartable: the scrape
// orchestrator cycles it periodically and after error bursts to shed leaked
// portal session state.
type Browser struct {
	cfg config.PortalConfig

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	restarts int
}

// NewBrowser builds an unstarted browser. Call Start before use.
func NewBrowser(cfg config.PortalConfig) *Browser {
	return &Browser{cfg: cfg}
}

// Start launches Chrome and connects the DevTools session.
func (b *Browser) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLocked()
}

func (b *Browser) startLocked() error {
	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-sandbox")
	if b.cfg.ChromePath != "" {
		l = l.Bin(b.cfg.ChromePath)
	}
	if b.cfg.SocksProxy != "" {
		l = l.Proxy(b.cfg.SocksProxy)
	}

	u, err := l.Launch()
	if err != nil {
		return eris.Wrap(err, "portal: launch chrome")
	}

	br := rod.New().ControlURL(u)
	if err := br.Connect(); err != nil {
		l.Kill()
		return eris.Wrap(err, "portal: connect devtools")
	}

	b.launcher = l
	b.browser = br
	zap.L().Info("browser started",
		zap.String("component", "portal"),
		zap.Int("restarts", b.restarts),
		zap.Bool("proxied", b.cfg.SocksProxy != ""))
	return nil
}

// Restart tears the current Chrome down and launches a fresh one. Pages
// obtained before the restart are dead afterwards.
func (b *Browser) Restart() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	b.restarts++
	return b.startLocked()
}

// Restarts reports how many times the browser has been cycled.
func (b *Browser) Restarts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restarts
}

// Close shuts Chrome down. Safe to call on an unstarted or already-closed
// browser.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Browser) closeLocked() {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			zap.L().Debug("browser close", zap.String("component", "portal"), zap.Error(err))
		}
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
}

// Page opens a new tab at url with the configured navigation timeout applied.
func (b *Browser) Page(url string) (*rod.Page, error) {
	b.mu.Lock()
	br := b.browser
	b.mu.Unlock()
	if br == nil {
		return nil, eris.New("portal: browser not started")
	}

	page, err := br.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, eris.Wrapf(err, "portal: open page %s", url)
	}
	page = page.Timeout(b.navTimeout())
	if err := page.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, eris.Wrapf(err, "portal: load %s", url)
	}
	return page, nil
}

// WaitDownload arms the browser-wide download trap writing into dir and
// returns a wait function that blocks until the next download completes.
func (b *Browser) WaitDownload(dir string) func() (*proto.PageDownloadWillBegin, error) {
	b.mu.Lock()
	br := b.browser
	b.mu.Unlock()
	if br == nil {
		return func() (*proto.PageDownloadWillBegin, error) {
			return nil, eris.New("portal: browser not started")
		}
	}
	wait := br.WaitDownload(dir)
	return func() (*proto.PageDownloadWillBegin, error) {
		info := wait()
		if info == nil {
			return nil, eris.New("portal: download did not begin")
		}
		return info, nil
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavTimeoutSecs <= 0 {
		return 45 * time.Second
	}
	return time.Duration(b.cfg.NavTimeoutSecs) * time.Second
}
