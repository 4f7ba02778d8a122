package pricing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

// PMI rate cards arrive as curated workbooks with three sheets:
//
//	Card         key/value pairs: naic, premium_type, state, version,
//	             effective_date (YYYY-MM-DD)
//	Rates        ltv_min, ltv_max, fico_min, fico_max, coverage_pct, rate
//	Adjustments  position, name, condition (JSON object), method, value
//
// Conditions are validated at load so a malformed card never installs.

// LoadPMIWorkbook parses a workbook into a card plus the carrier NAIC code
// it belongs to.
func LoadPMIWorkbook(path string) (store.PMIRateCard, string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return store.PMIRateCard{}, "", eris.Wrapf(err, "pricing: open workbook %s", path)
	}

	meta, err := readCardSheet(f)
	if err != nil {
		return store.PMIRateCard{}, "", err
	}

	card := store.PMIRateCard{
		PremiumType: meta["premium_type"],
		State:       strings.ToUpper(meta["state"]),
		Version:     meta["version"],
	}
	naic := meta["naic"]
	if naic == "" || card.PremiumType == "" || card.State == "" || card.Version == "" {
		return store.PMIRateCard{}, "", resilience.WithKind(resilience.KindValidation,
			eris.Errorf("pricing: workbook %s Card sheet missing naic, premium_type, state, or version", path))
	}
	if d, err := time.Parse("2006-01-02", meta["effective_date"]); err == nil {
		card.EffectiveDate = &d
	}

	if card.Rates, err = readRatesSheet(f); err != nil {
		return store.PMIRateCard{}, "", eris.Wrapf(err, "pricing: workbook %s", path)
	}
	if len(card.Rates) == 0 {
		return store.PMIRateCard{}, "", resilience.WithKind(resilience.KindValidation,
			eris.Errorf("pricing: workbook %s has no rate rows", path))
	}
	if card.Adjustments, err = readAdjustmentsSheet(f); err != nil {
		return store.PMIRateCard{}, "", eris.Wrapf(err, "pricing: workbook %s", path)
	}
	return card, naic, nil
}

// InstallPMIWorkbook loads a workbook, resolves its carrier, and installs
// the card as current. Returns the new card id.
func InstallPMIWorkbook(ctx context.Context, st *store.Store, path string) (string, error) {
	card, naic, err := LoadPMIWorkbook(path)
	if err != nil {
		return "", err
	}

	carrier, err := st.GetCarrierByNAIC(ctx, naic)
	if err != nil {
		return "", err
	}
	if carrier == nil {
		return "", resilience.WithKind(resilience.KindValidation,
			eris.Errorf("pricing: no carrier with NAIC %s; scrape or enroll it first", naic))
	}
	card.CarrierID = carrier.ID

	id, err := st.InstallPMICard(ctx, card)
	if err != nil {
		return "", err
	}
	zap.L().Info("pmi card installed",
		zap.String("component", "pricing"),
		zap.String("card_id", id),
		zap.String("naic", naic),
		zap.String("state", card.State),
		zap.String("version", card.Version),
		zap.Int("rates", len(card.Rates)),
		zap.Int("adjustments", len(card.Adjustments)))
	return id, nil
}

func readCardSheet(f *xlsx.File) (map[string]string, error) {
	sheet, ok := f.Sheet["Card"]
	if !ok {
		return nil, resilience.WithKind(resilience.KindValidation,
			eris.New("pricing: workbook has no Card sheet"))
	}
	meta := map[string]string{}
	for _, row := range sheet.Rows {
		if len(row.Cells) < 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(row.Cells[0].String()))
		if key != "" {
			meta[key] = strings.TrimSpace(row.Cells[1].String())
		}
	}
	return meta, nil
}

func readRatesSheet(f *xlsx.File) ([]store.PMIRate, error) {
	sheet, ok := f.Sheet["Rates"]
	if !ok {
		return nil, resilience.WithKind(resilience.KindValidation,
			eris.New("pricing: workbook has no Rates sheet"))
	}

	var rates []store.PMIRate
	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) < 6 || strings.TrimSpace(row.Cells[0].String()) == "" {
			continue
		}
		var r store.PMIRate
		var err error
		if r.LTVMin, err = row.Cells[0].Float(); err != nil {
			return nil, eris.Wrapf(err, "Rates row %d ltv_min", i+1)
		}
		if r.LTVMax, err = row.Cells[1].Float(); err != nil {
			return nil, eris.Wrapf(err, "Rates row %d ltv_max", i+1)
		}
		if r.FICOMin, err = row.Cells[2].Int(); err != nil {
			return nil, eris.Wrapf(err, "Rates row %d fico_min", i+1)
		}
		if r.FICOMax, err = row.Cells[3].Int(); err != nil {
			return nil, eris.Wrapf(err, "Rates row %d fico_max", i+1)
		}
		if r.CoveragePct, err = row.Cells[4].Float(); err != nil {
			return nil, eris.Wrapf(err, "Rates row %d coverage_pct", i+1)
		}
		if r.Rate, err = row.Cells[5].Float(); err != nil {
			return nil, eris.Wrapf(err, "Rates row %d rate", i+1)
		}
		rates = append(rates, r)
	}
	return rates, nil
}

func readAdjustmentsSheet(f *xlsx.File) ([]store.PMIAdjustment, error) {
	sheet, ok := f.Sheet["Adjustments"]
	if !ok {
		return nil, nil // adjustments are optional
	}

	var adjustments []store.PMIAdjustment
	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) < 5 || strings.TrimSpace(row.Cells[1].String()) == "" {
			continue
		}
		var a store.PMIAdjustment
		var err error
		if a.Position, err = row.Cells[0].Int(); err != nil {
			return nil, eris.Wrapf(err, "Adjustments row %d position", i+1)
		}
		a.Name = strings.TrimSpace(row.Cells[1].String())
		a.Condition = json.RawMessage(strings.TrimSpace(row.Cells[2].String()))
		a.Method = strings.ToLower(strings.TrimSpace(row.Cells[3].String()))
		if a.Value, err = row.Cells[4].Float(); err != nil {
			return nil, eris.Wrapf(err, "Adjustments row %d value", i+1)
		}

		if a.Method != "add" && a.Method != "multiply" && a.Method != "override" {
			return nil, resilience.WithKind(resilience.KindValidation,
				eris.Errorf("Adjustments row %d: unknown method %q", i+1, a.Method))
		}
		if _, err := ParseCondition(a.Condition); err != nil {
			return nil, eris.Wrapf(err, "Adjustments row %d (%s)", i+1, a.Name)
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, nil
}
