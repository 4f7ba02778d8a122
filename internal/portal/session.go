package portal

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/resilience"
)

// Navigator drives one portal session on one page. It is not safe for
// concurrent use; the orchestrator gives each worker its own Navigator.
type Navigator struct {
	browser *Browser
	cfg     config.PortalConfig
	page    *rod.Page
}

// NewNavigator builds a navigator over a started browser.
func NewNavigator(b *Browser, cfg config.PortalConfig) *Navigator {
	return &Navigator{browser: b, cfg: cfg}
}

// Page exposes the active page for download plumbing.
func (n *Navigator) Page() *rod.Page { return n.page }

// Candidate selectors per portal skin. The Filing Access front end has
// shipped several markups; try each in order and take the first hit.
var (
	beginSearchSelectors = []string{
		`a[id$='beginSearch']`,
		`button[id$='beginSearch']`,
		`input[value='Begin Search']`,
	}
	acceptSelectors = []string{
		`button[id$='acceptButton']`,
		`input[value='Accept']`,
		`a[id$='accept']`,
	}
)

// EstablishSession opens the portal landing page for a state, passes the
// Begin Search gate, and accepts the usage agreement when one is shown.
// A blocked session comes back as a portal_blocked error; the caller owns
// the cooldown and restart.
func (n *Navigator) EstablishSession(ctx context.Context) error {
	if n.page != nil {
		_ = n.page.Close()
		n.page = nil
	}

	page, err := n.browser.Page(n.cfg.BaseURL)
	if err != nil {
		return resilience.WithKind(resilience.KindPortalTransient, err)
	}
	page = page.Context(ctx)
	n.page = page

	if err := n.checkBlocked(); err != nil {
		return err
	}

	if el := n.firstElement(beginSearchSelectors); el != nil {
		if err := n.clickAndSettle(el); err != nil {
			return resilience.WithKind(resilience.KindPortalTransient,
				eris.Wrap(err, "portal: begin search"))
		}
	}

	// The agreement page appears once per browser session.
	if el := n.firstElement(acceptSelectors); el != nil {
		if err := n.clickAndSettle(el); err != nil {
			return resilience.WithKind(resilience.KindPortalTransient,
				eris.Wrap(err, "portal: accept agreement"))
		}
		zap.L().Debug("usage agreement accepted", zap.String("component", "portal"))
	}

	return n.checkBlocked()
}

// blockCooldown floors a configured CAPTCHA cooldown at three minutes.
// Shorter cooldowns just trip the interstitial again.
func blockCooldown(secs int) time.Duration {
	cooldown := time.Duration(secs) * time.Second
	if cooldown < 3*time.Minute {
		cooldown = 3 * time.Minute
	}
	return cooldown
}

// CooldownOnBlock sleeps the configured CAPTCHA cooldown, floored at three
// minutes, honoring context cancellation.
func (n *Navigator) CooldownOnBlock(ctx context.Context) error {
	cooldown := blockCooldown(n.cfg.CaptchaCooldownSecs)
	zap.L().Warn("portal blocked, cooling down",
		zap.String("component", "portal"),
		zap.Duration("cooldown", cooldown))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cooldown):
		return nil
	}
}

// checkBlocked inspects the current page for the portal's bot interstitial:
// an HTTP 405 response or a human-verification page title.
func (n *Navigator) checkBlocked() error {
	info, err := n.page.Info()
	if err != nil {
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrap(err, "portal: page info"))
	}
	title := strings.ToLower(info.Title)
	if strings.Contains(title, "verification") || strings.Contains(title, "405") {
		return resilience.WithKindStatus(resilience.KindPortalBlocked,
			eris.Errorf("portal: bot interstitial (title %q)", info.Title), 405)
	}
	return nil
}

// firstElement probes candidate selectors without waiting and returns the
// first match, or nil when none are present.
func (n *Navigator) firstElement(selectors []string) *rod.Element {
	for _, sel := range selectors {
		has, el, err := n.page.Has(sel)
		if err == nil && has {
			return el
		}
	}
	return nil
}

// clickAndSettle clicks an element and waits for the ensuing load plus the
// portal's block-UI overlay to clear.
func (n *Navigator) clickAndSettle(el *rod.Element) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := n.page.WaitLoad(); err != nil {
		return err
	}
	return n.waitOverlayGone()
}

// waitOverlayGone polls until the PrimeFaces block-UI overlay is hidden.
// The portal throws it over the results panel during AJAX refreshes.
func (n *Navigator) waitOverlayGone() error {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		has, el, err := n.page.Has(`.ui-blockui`)
		if err != nil || !has {
			return nil
		}
		visible, err := el.Visible()
		if err != nil || !visible {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return eris.New("portal: block overlay never cleared")
}
