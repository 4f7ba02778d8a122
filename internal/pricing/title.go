package pricing

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

// TitleRequest is one title-premium quote request. An empty PolicyType is
// inferred from the amounts: both set quotes a simultaneous issue, owner
// coverage alone an owner policy, a loan alone a standalone lender policy.
type TitleRequest struct {
	State            string
	PolicyType       string  // owner | lender | simultaneous
	OwnerCoverage    float64 // purchase price
	LoanAmount       float64
	PriorPolicyYears *int // set when a prior policy qualifies for reissue credit
	Endorsements     []string
}

// resolvePolicyType fills an empty policy type from the request amounts.
func resolvePolicyType(req TitleRequest) string {
	if t := strings.ToLower(strings.TrimSpace(req.PolicyType)); t != "" {
		return t
	}
	switch {
	case req.OwnerCoverage > 0 && req.LoanAmount > 0:
		return "simultaneous"
	case req.OwnerCoverage > 0:
		return "owner"
	default:
		return "lender"
	}
}

// EndorsementFee is one priced endorsement on a quote.
type EndorsementFee struct {
	Code string  `json:"code"`
	Fee  float64 `json:"fee"`
}

// TitleQuote is one underwriter's all-in premium.
type TitleQuote struct {
	CarrierID            string
	CarrierName          string
	Promulgated          bool
	OwnerPremium         float64
	LenderPremium        float64
	SimultaneousDiscount float64
	ReissueCredit        float64
	EndorsementFees      []EndorsementFee
	Total                float64
	Rank                 int
}

// TitleEngine quotes owner, standalone lender, and simultaneous-issue title
// premiums.
type TitleEngine struct {
	st *store.Store
}

// NewTitleEngine builds a title engine.
func NewTitleEngine(st *store.Store) *TitleEngine {
	return &TitleEngine{st: st}
}

// Quote prices the request against every underwriter with a current card for
// the policy type and state, ranked by total premium (ties broken by carrier
// name).
func (e *TitleEngine) Quote(ctx context.Context, req TitleRequest) ([]TitleQuote, error) {
	started := time.Now()
	policyType := resolvePolicyType(req)
	if err := validateTitleRequest(req, policyType); err != nil {
		return nil, err
	}

	var ownerCards, lenderCards []store.TitleRateCard
	var err error
	if policyType != "lender" {
		if ownerCards, err = e.st.CurrentTitleCards(ctx, "owner", req.State); err != nil {
			return nil, err
		}
	}
	if policyType != "owner" {
		if lenderCards, err = e.st.CurrentTitleCards(ctx, "lender", req.State); err != nil {
			return nil, err
		}
	}

	var quotes []TitleQuote
	if policyType == "lender" {
		for _, lender := range lenderCards {
			quote, err := e.quoteCarrier(ctx, policyType, store.TitleRateCard{}, lender, req)
			if err != nil {
				return nil, err
			}
			quotes = append(quotes, quote)
		}
	} else {
		lenderByCarrier := map[string]store.TitleRateCard{}
		for _, c := range lenderCards {
			lenderByCarrier[c.CarrierID] = c
		}
		for _, owner := range ownerCards {
			quote, err := e.quoteCarrier(ctx, policyType, owner, lenderByCarrier[owner.CarrierID], req)
			if err != nil {
				return nil, err
			}
			quotes = append(quotes, quote)
		}
	}

	sort.Slice(quotes, func(i, j int) bool {
		if quotes[i].Total != quotes[j].Total {
			return quotes[i].Total < quotes[j].Total
		}
		return quotes[i].CarrierName < quotes[j].CarrierName
	})
	for i := range quotes {
		quotes[i].Rank = i + 1
	}

	e.logQuotes(ctx, req, policyType, quotes, time.Since(started).Milliseconds())
	return quotes, nil
}

// quoteCarrier prices one underwriter. The lender card doubles as the primary
// card on standalone lender policies, where the reissue credit and the
// endorsements price against the lender premium instead of the owner premium.
func (e *TitleEngine) quoteCarrier(ctx context.Context, policyType string, owner, lender store.TitleRateCard, req TitleRequest) (TitleQuote, error) {
	primary := owner
	if policyType == "lender" {
		primary = lender
	}

	name, err := e.st.CarrierName(ctx, primary.CarrierID)
	if err != nil {
		return TitleQuote{}, err
	}

	quote := TitleQuote{
		CarrierID:   primary.CarrierID,
		CarrierName: name,
		Promulgated: primary.IsPromulgated,
	}
	if policyType != "lender" {
		quote.OwnerPremium = BandPremium(owner.Bands, req.OwnerCoverage)
	}

	lenderDue := 0.0
	switch policyType {
	case "lender":
		quote.LenderPremium = BandPremium(lender.Bands, req.LoanAmount)
		lenderDue = quote.LenderPremium
	case "simultaneous":
		if lender.CarrierID != "" {
			quote.LenderPremium = BandPremium(lender.Bands, req.LoanAmount)
			simultaneous := lender.Simultaneous
			if len(simultaneous) == 0 {
				simultaneous = owner.Simultaneous
			}
			discount, flat := simultaneousDiscount(simultaneous, req.LoanAmount, quote.LenderPremium)
			quote.SimultaneousDiscount = discount
			lenderDue = quote.LenderPremium - discount
			if lenderDue < 0 {
				lenderDue = 0
			}
			lenderDue += flat
		}
	}

	// Reissue credits against the owner premium when an owner policy is
	// issued, else against the lender premium.
	basePremium, baseTiers := quote.OwnerPremium, owner.Reissue
	if policyType == "lender" {
		basePremium, baseTiers = quote.LenderPremium, lender.Reissue
	}
	if req.PriorPolicyYears != nil {
		quote.ReissueCredit = reissueCredit(baseTiers, basePremium, *req.PriorPolicyYears)
	}

	for _, code := range req.Endorsements {
		if fee, ok := endorsementFee(primary.Endorsements, code, basePremium); ok {
			quote.EndorsementFees = append(quote.EndorsementFees, EndorsementFee{Code: code, Fee: fee})
		} else {
			zap.L().Debug("endorsement not on card",
				zap.String("component", "pricing"),
				zap.String("carrier_id", primary.CarrierID),
				zap.String("code", code))
		}
	}

	total := quote.OwnerPremium - quote.ReissueCredit + lenderDue
	for _, f := range quote.EndorsementFees {
		total += f.Fee
	}
	if total < 0 {
		total = 0
	}
	quote.Total = total
	return quote, nil
}

// BandPremium walks the coverage bands, charging each band's rate on the
// coverage that falls inside it plus any flat fee, then floors the result at
// the highest minimum premium among the bands touched.
func BandPremium(bands []store.TitleRate, insured float64) float64 {
	premium := 0.0
	minimum := 0.0
	for _, band := range bands {
		if insured <= band.CoverageMin {
			continue
		}
		upper := insured
		if band.CoverageMax > 0 && upper > band.CoverageMax {
			upper = band.CoverageMax
		}
		premium += (upper - band.CoverageMin) / 1000 * band.RatePerThousand
		premium += band.FlatFee
		if band.MinimumPremium > minimum {
			minimum = band.MinimumPremium
		}
	}
	if premium < minimum {
		premium = minimum
	}
	return premium
}

// simultaneousDiscount returns the discount off the lender premium for the
// matching loan band, plus the band's flat simultaneous-issue charge.
func simultaneousDiscount(bands []store.TitleSimultaneous, loan, lenderPremium float64) (discount, flat float64) {
	for _, band := range bands {
		if loan < band.LoanMin || (band.LoanMax > 0 && loan > band.LoanMax) {
			continue
		}
		switch {
		case band.DiscountRatePerThousand != nil:
			discount = loan / 1000 * *band.DiscountRatePerThousand
		case band.DiscountPct != nil:
			discount = lenderPremium * *band.DiscountPct / 100
		}
		return discount, band.FlatFee
	}
	return 0, 0
}

// reissueCredit returns the credit for a prior policy aged into one of the
// reissue tiers.
func reissueCredit(tiers []store.TitleReissue, basePremium float64, years int) float64 {
	y := float64(years)
	for _, tier := range tiers {
		if y >= tier.YearsMin && (tier.YearsMax == 0 || y <= tier.YearsMax) {
			return basePremium * tier.CreditPct / 100
		}
	}
	return 0
}

// endorsementFee prices one endorsement code against the base premium.
func endorsementFee(endorsements []store.TitleEndorsement, code string, basePremium float64) (float64, bool) {
	for _, e := range endorsements {
		if e.Code != code {
			continue
		}
		fee := e.FlatFee + basePremium/1000*e.RatePerThousand + basePremium*e.PctOfBase/100
		return fee, true
	}
	return 0, false
}

func validateTitleRequest(req TitleRequest, policyType string) error {
	if req.State == "" {
		return resilience.WithKind(resilience.KindValidation,
			eris.New("pricing: state is required"))
	}
	if req.OwnerCoverage < 0 || req.LoanAmount < 0 {
		return resilience.WithKind(resilience.KindValidation,
			eris.New("pricing: coverage amounts cannot be negative"))
	}
	switch policyType {
	case "owner":
		if req.OwnerCoverage <= 0 {
			return resilience.WithKind(resilience.KindValidation,
				eris.New("pricing: owner policy needs a positive owner coverage"))
		}
	case "lender":
		if req.LoanAmount <= 0 {
			return resilience.WithKind(resilience.KindValidation,
				eris.New("pricing: lender policy needs a positive loan amount"))
		}
	case "simultaneous":
		if req.OwnerCoverage <= 0 || req.LoanAmount <= 0 {
			return resilience.WithKind(resilience.KindValidation,
				eris.New("pricing: simultaneous issue needs owner coverage and a loan amount"))
		}
	default:
		return resilience.WithKind(resilience.KindValidation,
			eris.Errorf("pricing: unknown policy type %q", policyType))
	}
	return nil
}

func (e *TitleEngine) logQuotes(ctx context.Context, req TitleRequest, policyType string, quotes []TitleQuote, elapsedMS int64) {
	request, _ := json.Marshal(map[string]any{
		"state":          req.State,
		"policy_type":    policyType,
		"owner_coverage": req.OwnerCoverage,
		"loan_amount":    req.LoanAmount,
		"endorsements":   req.Endorsements,
	})
	summary, _ := json.Marshal(map[string]any{"quotes": len(quotes)})

	log := store.QuoteLog{
		ProductLine: "title",
		Request:     request,
		Summary:     summary,
		ElapsedMS:   elapsedMS,
	}
	if len(quotes) > 0 {
		log.BestCarrier = quotes[0].CarrierName
		log.BestRate = quotes[0].Total
	}
	if err := e.st.InsertQuoteLog(ctx, log); err != nil {
		zap.L().Warn("quote log write failed",
			zap.String("component", "pricing"),
			zap.String("product", "title"),
			zap.Error(err))
	}
}
