package pricing

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hermes-intel/hermes/internal/config"
	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

// PMIRequest is one mortgage-insurance quote request.
type PMIRequest struct {
	State         string
	LoanAmount    float64
	PropertyValue float64
	FICO          int
	PremiumType   string  // borrower_monthly | borrower_single | lender_paid | split
	CoveragePct   float64 // 0 uses the GSE standard for the LTV
	Attributes    Attributes
}

// AdjustmentStep records one applied adjustment with the rate before and
// after, for the quote audit trail.
type AdjustmentStep struct {
	Name   string  `json:"name"`
	Method string  `json:"method"`
	Value  float64 `json:"value"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// PMIQuote is one carrier's quote.
type PMIQuote struct {
	CarrierID      string
	CarrierName    string
	CardVersion    string
	CoveragePct    float64
	BaseRate       float64
	AdjustedRate   float64
	Adjustments    []AdjustmentStep
	AnnualPremium  float64
	MonthlyPremium float64
	SinglePremium  float64
	SplitUpfront   float64
	SplitMonthly   float64
	Rank           int
}

// PMIEngine quotes all carriers with a current card for the premium type and
// state.
type PMIEngine struct {
	st  *store.Store
	cfg config.PricingConfig
}

// NewPMIEngine builds a PMI engine.
func NewPMIEngine(st *store.Store, cfg config.PricingConfig) *PMIEngine {
	if cfg.SinglePremiumMultiplier <= 0 {
		cfg.SinglePremiumMultiplier = 3.0
	}
	return &PMIEngine{st: st, cfg: cfg}
}

// StandardCoverage returns the GSE standard coverage percentage for an LTV.
// At or below 80 no mortgage insurance is required.
func StandardCoverage(ltv float64) int {
	switch {
	case ltv <= 80:
		return 0
	case ltv <= 85:
		return 6
	case ltv <= 90:
		return 25
	case ltv <= 95:
		return 30
	default:
		return 35
	}
}

// Quote prices the request against every current card, in parallel, and
// returns quotes ranked by annual premium (ties broken by carrier name).
// An LTV at or under 80 returns an empty slice: no insurance required.
func (e *PMIEngine) Quote(ctx context.Context, req PMIRequest) ([]PMIQuote, error) {
	started := time.Now()
	if err := validatePMIRequest(req); err != nil {
		return nil, err
	}

	ltv := req.LoanAmount / req.PropertyValue * 100
	if ltv <= 80 {
		return []PMIQuote{}, nil
	}
	if ltv > 97 {
		return nil, resilience.WithKind(resilience.KindValidation,
			eris.Errorf("pricing: LTV %.2f exceeds the insurable maximum of 97", ltv))
	}

	coverage := req.CoveragePct
	if coverage == 0 {
		coverage = float64(StandardCoverage(ltv))
	}

	cards, err := e.st.CurrentPMICards(ctx, req.PremiumType, req.State)
	if err != nil {
		return nil, err
	}

	attrs := Attributes{"ltv": ltv, "fico": float64(req.FICO),
		"loan_amount": req.LoanAmount, "coverage_pct": coverage, "state": req.State}
	for k, v := range req.Attributes {
		attrs[k] = v
	}

	var (
		mu     sync.Mutex
		quotes []PMIQuote
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, card := range cards {
		card := card
		g.Go(func() error {
			quote, ok, err := e.quoteCard(gctx, card, ltv, coverage, req, attrs)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				quotes = append(quotes, quote)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(quotes, func(i, j int) bool {
		if quotes[i].AnnualPremium != quotes[j].AnnualPremium {
			return quotes[i].AnnualPremium < quotes[j].AnnualPremium
		}
		return quotes[i].CarrierName < quotes[j].CarrierName
	})
	for i := range quotes {
		quotes[i].Rank = i + 1
	}

	e.logQuotes(ctx, req, ltv, coverage, quotes, time.Since(started).Milliseconds())
	return quotes, nil
}

// quoteCard prices one card. A card with no matching grid cell declines
// without error, and a card whose adjustments fail to evaluate declines with
// a warning so one carrier's bad card never sinks the other quotes.
func (e *PMIEngine) quoteCard(ctx context.Context, card store.PMIRateCard, ltv, coverage float64, req PMIRequest, attrs Attributes) (PMIQuote, bool, error) {
	base, found := lookupRate(card.Rates, ltv, req.FICO, coverage)
	if !found {
		return PMIQuote{}, false, nil
	}

	rate, steps, err := ApplyAdjustments(base, card.Adjustments, attrs)
	if err != nil {
		zap.L().Warn("card declined, adjustments failed",
			zap.String("component", "pricing"),
			zap.String("card_id", card.ID),
			zap.String("carrier_id", card.CarrierID),
			zap.Error(err))
		return PMIQuote{}, false, nil
	}

	name, err := e.st.CarrierName(ctx, card.CarrierID)
	if err != nil {
		return PMIQuote{}, false, err
	}

	annual := rate / 100 * req.LoanAmount
	quote := PMIQuote{
		CarrierID:      card.CarrierID,
		CarrierName:    name,
		CardVersion:    card.Version,
		CoveragePct:    coverage,
		BaseRate:       base,
		AdjustedRate:   rate,
		Adjustments:    steps,
		AnnualPremium:  annual,
		MonthlyPremium: annual / 12,
		SinglePremium:  annual * e.cfg.SinglePremiumMultiplier,
		SplitUpfront:   annual * e.cfg.SinglePremiumMultiplier / 2,
		SplitMonthly:   annual / 12 / 2,
	}
	return quote, true, nil
}

// ApplyAdjustments runs the card's adjustments over the base rate in
// position order, skipping those whose conditions do not match, and returns
// the final rate with the applied steps. The rate never goes below zero.
func ApplyAdjustments(base float64, adjustments []store.PMIAdjustment, attrs Attributes) (float64, []AdjustmentStep, error) {
	rate := base
	var steps []AdjustmentStep
	for _, adj := range adjustments {
		cond, err := ParseCondition(adj.Condition)
		if err != nil {
			return 0, nil, eris.Wrapf(err, "adjustment %q", adj.Name)
		}
		if !cond.Matches(attrs) {
			continue
		}
		before := rate
		switch adj.Method {
		case "add":
			rate += adj.Value
		case "multiply":
			rate *= adj.Value
		case "override":
			rate = adj.Value
		default:
			return 0, nil, resilience.WithKind(resilience.KindValidation,
				eris.Errorf("adjustment %q has unknown method %q", adj.Name, adj.Method))
		}
		steps = append(steps, AdjustmentStep{
			Name: adj.Name, Method: adj.Method, Value: adj.Value,
			Before: before, After: rate,
		})
	}
	if rate < 0 {
		rate = 0
	}
	return rate, steps, nil
}

// lookupRate finds the grid cell covering (ltv, fico, coverage). Bounds are
// inclusive on both ends, matching how the filed rate grids read.
func lookupRate(rates []store.PMIRate, ltv float64, fico int, coverage float64) (float64, bool) {
	for _, r := range rates {
		if ltv >= r.LTVMin && ltv <= r.LTVMax &&
			fico >= r.FICOMin && fico <= r.FICOMax &&
			r.CoveragePct == coverage {
			return r.Rate, true
		}
	}
	return 0, false
}

func validatePMIRequest(req PMIRequest) error {
	switch {
	case req.LoanAmount <= 0:
		return resilience.WithKind(resilience.KindValidation,
			eris.New("pricing: loan amount must be positive"))
	case req.PropertyValue <= 0:
		return resilience.WithKind(resilience.KindValidation,
			eris.New("pricing: property value must be positive"))
	case req.FICO < 300 || req.FICO > 850:
		return resilience.WithKind(resilience.KindValidation,
			eris.Errorf("pricing: FICO %d outside 300-850", req.FICO))
	case req.State == "":
		return resilience.WithKind(resilience.KindValidation,
			eris.New("pricing: state is required"))
	}
	return nil
}

// logQuotes records the quote for audit, fire-and-forget.
func (e *PMIEngine) logQuotes(ctx context.Context, req PMIRequest, ltv, coverage float64, quotes []PMIQuote, elapsedMS int64) {
	request, _ := json.Marshal(map[string]any{
		"state":          req.State,
		"loan_amount":    req.LoanAmount,
		"property_value": req.PropertyValue,
		"ltv":            ltv,
		"fico":           req.FICO,
		"coverage_pct":   coverage,
		"premium_type":   req.PremiumType,
	})
	summary, _ := json.Marshal(map[string]any{"quotes": len(quotes)})

	log := store.QuoteLog{
		ProductLine: "pmi",
		Request:     request,
		Summary:     summary,
		ElapsedMS:   elapsedMS,
	}
	if len(quotes) > 0 {
		log.BestCarrier = quotes[0].CarrierName
		log.BestRate = quotes[0].AdjustedRate
	}
	if err := e.st.InsertQuoteLog(ctx, log); err != nil {
		zap.L().Warn("quote log write failed",
			zap.String("component", "pricing"),
			zap.String("product", "pmi"),
			zap.Error(err))
	}
}
