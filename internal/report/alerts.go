// Package report turns appetite signals into alerts and rolls filing
// activity up into per-market intelligence reports.
package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/store"
)

// Alert severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Signals whose source filing is still an open submission get a strength
// boost: the change is coming but not yet final, which is exactly when a
// reaction is cheapest.
const openSubmissionBoost = 2

// Alert is a signal dressed for consumption: boosted strength, severity,
// carrier name.
type Alert struct {
	Signal      store.AppetiteSignal
	CarrierName string
	Strength    int
	Severity    string
}

// Digest groups one day's alerts by severity.
type Digest struct {
	State  string
	Since  time.Time
	High   []Alert
	Medium []Alert
	Low    []Alert
}

// Alerter builds alerts from stored signals.
type Alerter struct {
	st *store.Store
}

// NewAlerter builds an alerter.
func NewAlerter(st *store.Store) *Alerter {
	return &Alerter{st: st}
}

// Severity maps an effective strength onto the alert severity.
func Severity(strength int) string {
	switch {
	case strength >= 7:
		return SeverityHigh
	case strength >= 4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// BoostedStrength applies the open-submission boost, capped at 10.
func BoostedStrength(strength int, openSubmission bool) int {
	if !openSubmission {
		return strength
	}
	strength += openSubmissionBoost
	if strength > 10 {
		strength = 10
	}
	return strength
}

// Unread returns unacknowledged alerts at or above minStrength, strongest
// first.
func (a *Alerter) Unread(ctx context.Context, minStrength int) ([]Alert, error) {
	signals, err := a.st.UnacknowledgedSignals(ctx, minStrength)
	if err != nil {
		return nil, err
	}
	return a.dress(ctx, signals)
}

// Acknowledge marks an alert's signal as handled.
func (a *Alerter) Acknowledge(ctx context.Context, signalID string) error {
	return a.st.AcknowledgeSignal(ctx, signalID)
}

// DailyDigest groups the last 24 hours of a state's signals by severity.
func (a *Alerter) DailyDigest(ctx context.Context, state string) (Digest, error) {
	since := time.Now().Add(-24 * time.Hour)
	digest := Digest{State: state, Since: since}

	signals, err := a.st.SignalsSince(ctx, state, since, 200)
	if err != nil {
		return digest, err
	}
	alerts, err := a.dress(ctx, signals)
	if err != nil {
		return digest, err
	}

	for _, alert := range alerts {
		switch alert.Severity {
		case SeverityHigh:
			digest.High = append(digest.High, alert)
		case SeverityMedium:
			digest.Medium = append(digest.Medium, alert)
		default:
			digest.Low = append(digest.Low, alert)
		}
	}
	return digest, nil
}

// dress resolves carrier names and applies the open-submission boost.
func (a *Alerter) dress(ctx context.Context, signals []store.AppetiteSignal) ([]Alert, error) {
	alerts := make([]Alert, 0, len(signals))
	for _, sig := range signals {
		open := false
		if sig.SourceFiling != nil {
			status, err := a.st.FilingStatus(ctx, *sig.SourceFiling)
			if err != nil {
				return nil, err
			}
			open = status == store.StatusPending
		}

		name, err := a.st.CarrierName(ctx, sig.CarrierID)
		if err != nil {
			zap.L().Warn("carrier name lookup failed",
				zap.String("component", "report"),
				zap.String("carrier_id", sig.CarrierID),
				zap.Error(err))
			name = sig.CarrierID
		}

		strength := BoostedStrength(sig.Strength, open)
		alerts = append(alerts, Alert{
			Signal:      sig,
			CarrierName: name,
			Strength:    strength,
			Severity:    Severity(strength),
		})
	}
	return alerts, nil
}
