package pricing

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

// Title rate bundles are YAML, one file per state. In promulgated states
// every underwriter files the same schedule, so a bundle usually lists one
// schedule per underwriter copied from the promulgated order.
type titleBundle struct {
	State        string             `yaml:"state"`
	Promulgated  bool               `yaml:"promulgated"`
	Underwriters []titleUnderwriter `yaml:"underwriters"`
}

type titleUnderwriter struct {
	NAIC          string              `yaml:"naic"`
	Version       string              `yaml:"version"`
	EffectiveDate string              `yaml:"effective_date"`
	Owner         titleSchedule       `yaml:"owner"`
	Lender        titleSchedule       `yaml:"lender"`
	Simultaneous  []titleSimultaneous `yaml:"simultaneous"`
	Reissue       []titleReissue      `yaml:"reissue"`
	Endorsements  []titleEndorsement  `yaml:"endorsements"`
}

type titleSchedule struct {
	Bands []titleBand `yaml:"bands"`
}

type titleBand struct {
	CoverageMin     float64 `yaml:"coverage_min"`
	CoverageMax     float64 `yaml:"coverage_max"`
	RatePerThousand float64 `yaml:"rate_per_thousand"`
	FlatFee         float64 `yaml:"flat_fee"`
	MinimumPremium  float64 `yaml:"minimum_premium"`
}

type titleSimultaneous struct {
	LoanMin                 float64  `yaml:"loan_min"`
	LoanMax                 float64  `yaml:"loan_max"`
	DiscountRatePerThousand *float64 `yaml:"discount_rate_per_thousand"`
	DiscountPct             *float64 `yaml:"discount_pct"`
	FlatFee                 float64  `yaml:"flat_fee"`
}

type titleReissue struct {
	YearsMin  float64 `yaml:"years_min"`
	YearsMax  float64 `yaml:"years_max"`
	CreditPct float64 `yaml:"credit_pct"`
}

type titleEndorsement struct {
	Code            string  `yaml:"code"`
	Description     string  `yaml:"description"`
	FlatFee         float64 `yaml:"flat_fee"`
	RatePerThousand float64 `yaml:"rate_per_thousand"`
	PctOfBase       float64 `yaml:"pct_of_base"`
}

// LoadTitleBundle parses a state bundle into (owner, lender) card pairs
// keyed by NAIC code.
func LoadTitleBundle(path string) (map[string][2]store.TitleRateCard, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pricing: read title bundle %s", path)
	}
	var bundle titleBundle
	if err := yaml.Unmarshal(raw, &bundle); err != nil {
		return nil, resilience.WithKind(resilience.KindValidation,
			eris.Wrapf(err, "pricing: parse title bundle %s", path))
	}
	if bundle.State == "" || len(bundle.Underwriters) == 0 {
		return nil, resilience.WithKind(resilience.KindValidation,
			eris.Errorf("pricing: title bundle %s missing state or underwriters", path))
	}

	state := strings.ToUpper(bundle.State)
	cards := map[string][2]store.TitleRateCard{}
	for i, uw := range bundle.Underwriters {
		if uw.NAIC == "" || uw.Version == "" {
			return nil, resilience.WithKind(resilience.KindValidation,
				eris.Errorf("pricing: title bundle %s underwriter %d missing naic or version", path, i))
		}
		if len(uw.Owner.Bands) == 0 {
			return nil, resilience.WithKind(resilience.KindValidation,
				eris.Errorf("pricing: title bundle %s underwriter %s has no owner bands", path, uw.NAIC))
		}

		base := store.TitleRateCard{
			State:         state,
			Version:       uw.Version,
			IsPromulgated: bundle.Promulgated,
		}
		if d, err := time.Parse("2006-01-02", uw.EffectiveDate); err == nil {
			base.EffectiveDate = &d
		}

		owner := base
		owner.PolicyType = "owner"
		owner.Bands = convertBands(uw.Owner.Bands)
		owner.Simultaneous = convertSimultaneous(uw.Simultaneous)
		owner.Reissue = convertReissue(uw.Reissue)
		owner.Endorsements = convertEndorsements(uw.Endorsements)

		lender := base
		lender.PolicyType = "lender"
		lender.Bands = convertBands(uw.Lender.Bands)
		lender.Simultaneous = convertSimultaneous(uw.Simultaneous)

		cards[uw.NAIC] = [2]store.TitleRateCard{owner, lender}
	}
	return cards, nil
}

// InstallTitleBundle loads a bundle and installs both policy cards for every
// underwriter whose carrier is known. Returns installed card ids.
func InstallTitleBundle(ctx context.Context, st *store.Store, path string) ([]string, error) {
	cards, err := LoadTitleBundle(path)
	if err != nil {
		return nil, err
	}

	var installed []string
	for naic, pair := range cards {
		carrier, err := st.GetCarrierByNAIC(ctx, naic)
		if err != nil {
			return installed, err
		}
		if carrier == nil {
			return installed, resilience.WithKind(resilience.KindValidation,
				eris.Errorf("pricing: no carrier with NAIC %s; scrape or enroll it first", naic))
		}

		for _, card := range pair {
			if len(card.Bands) == 0 {
				continue // lender schedule is optional
			}
			card.CarrierID = carrier.ID
			id, err := st.InstallTitleCard(ctx, card)
			if err != nil {
				return installed, err
			}
			installed = append(installed, id)
			zap.L().Info("title card installed",
				zap.String("component", "pricing"),
				zap.String("card_id", id),
				zap.String("naic", naic),
				zap.String("state", card.State),
				zap.String("policy_type", card.PolicyType),
				zap.String("version", card.Version))
		}
	}
	return installed, nil
}

func convertBands(in []titleBand) []store.TitleRate {
	out := make([]store.TitleRate, len(in))
	for i, b := range in {
		out[i] = store.TitleRate(b)
	}
	return out
}

func convertSimultaneous(in []titleSimultaneous) []store.TitleSimultaneous {
	out := make([]store.TitleSimultaneous, len(in))
	for i, s := range in {
		out[i] = store.TitleSimultaneous(s)
	}
	return out
}

func convertReissue(in []titleReissue) []store.TitleReissue {
	out := make([]store.TitleReissue, len(in))
	for i, r := range in {
		out[i] = store.TitleReissue(r)
	}
	return out
}

func convertEndorsements(in []titleEndorsement) []store.TitleEndorsement {
	out := make([]store.TitleEndorsement, len(in))
	for i, e := range in {
		out[i] = store.TitleEndorsement(e)
	}
	return out
}
