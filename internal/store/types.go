// Package store is the typed persistence layer over Postgres. Every entity
// write goes through a natural-key upsert; rate/rule/form history is kept via
// is_current flags instead of hard deletes.
package store

import (
	"encoding/json"
	"time"
)

// Filing status vocabulary. Portal statuses are normalized to these before
// persistence.
const (
	StatusPending     = "pending"
	StatusApproved    = "approved"
	StatusWithdrawn   = "withdrawn"
	StatusDisapproved = "disapproved"
)

// Filing type vocabulary.
const (
	FilingRate         = "rate"
	FilingRule         = "rule"
	FilingForm         = "form"
	FilingRateRuleForm = "rate_rule_form"
	FilingWithdrawal   = "withdrawal"
)

// Signal types emitted by the change detector.
const (
	SignalRateDecrease       = "rate_decrease"
	SignalRateIncrease       = "rate_increase"
	SignalExpandedClasses    = "expanded_classes"
	SignalContractedClasses  = "contracted_classes"
	SignalNewStateEntry      = "new_state_entry"
	SignalFilingWithdrawal   = "filing_withdrawal"
	SignalTerritoryExpansion = "territory_expansion"
)

// Carrier is a legal entity keyed by NAIC code.
type Carrier struct {
	ID        string
	NAICCode  string
	LegalName string
	Domicile  string
	Rating    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filing is one regulatory submission, keyed by (SERFF tracking, state).
type Filing struct {
	ID                   string
	CarrierID            *string
	SERFFTracking        string
	State                string
	LineOfBusiness       string
	FilingType           string
	Status               string
	FiledDate            *time.Time
	EffectiveDate        *time.Time
	DispositionDate      *time.Time
	OverallRateChangePct *float64
	RawMetadata          map[string]any
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FilingDocument is a single downloaded artifact belonging to a filing.
type FilingDocument struct {
	ID              string
	FilingID        string
	DocumentName    string
	LocalPath       string
	FileSizeBytes   int64
	MIMEType        string
	ChecksumSHA256  string
	ParsedFlag      bool
	ParseConfidence *float64
	DocumentType    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RateTable is an extracted rate table with child rows.
type RateTable struct {
	ID            string
	DocumentID    string
	FilingID      string
	TableType     string // base_rate | rating_factor | territory | class_mapping
	Caption       string
	Units         string
	EffectiveDate *time.Time
	Confidence    float64
	SourcePage    int
	IsCurrent     bool
}

// BaseRate is a class x territory rate cell.
type BaseRate struct {
	RateTableID string
	ClassCode   string
	Territory   string
	Rate        float64
	Confidence  float64
	SourcePage  int
}

// RatingFactor is a named multiplicative/additive factor row.
type RatingFactor struct {
	RateTableID string
	FactorName  string
	FactorValue float64
	AppliesTo   string
	Confidence  float64
	SourcePage  int
}

// TerritoryDefinition maps a territory code to its description.
type TerritoryDefinition struct {
	RateTableID   string
	TerritoryCode string
	Description   string
	Confidence    float64
	SourcePage    int
}

// ClassCodeMapping maps a class code to its eligibility status.
type ClassCodeMapping struct {
	RateTableID       string
	ClassCode         string
	Description       string
	EligibilityStatus string // eligible | ineligible | referral
	Confidence        float64
	SourcePage        int
}

// PremiumAlgorithm describes the premium computation order for a rate table.
type PremiumAlgorithm struct {
	RateTableID string
	StepOrder   int
	Description string
	Confidence  float64
	SourcePage  int
}

// UnderwritingRule is an extracted rule with typed criteria.
type UnderwritingRule struct {
	ID         string
	DocumentID string
	FilingID   string
	RuleType   string
	Category   string
	FullText   string
	Confidence float64
	SourcePage int
	IsCurrent  bool
}

// EligibilityCriterion is a structured condition attached to a rule.
type EligibilityCriterion struct {
	RuleID        string
	CriterionType string
	Value         string
	Operator      string // eq | gt | ge | lt | le | in
	Unit          string
	IsHardRule    bool
	Confidence    float64
}

// PolicyForm is an extracted policy form with provisions.
type PolicyForm struct {
	ID          string
	DocumentID  string
	FilingID    string
	FormNumber  string
	EditionDate string
	FormType    string
	Title       string
	Confidence  float64
	SourcePage  int
	IsCurrent   bool
}

// FormProvision is a typed provision within a policy form.
type FormProvision struct {
	FormID        string
	ProvisionType string // coverage_grant | exclusion | condition | definition
	Summary       string
	Impact        string // broadening | restricting | neutral
	Confidence    float64
	SourcePage    int
}

// CoverageOption, CreditSurcharge and Exclusion are flat per-document extracts.
type CoverageOption struct {
	DocumentID  string
	FilingID    string
	Name        string
	Description string
	Confidence  float64
	SourcePage  int
}

type CreditSurcharge struct {
	DocumentID string
	FilingID   string
	Name       string
	Kind       string // credit | surcharge
	Amount     float64
	Unit       string
	Confidence float64
	SourcePage int
}

type Exclusion struct {
	DocumentID  string
	FilingID    string
	Description string
	Confidence  float64
	SourcePage  int
}

// AppetiteProfile is the derived per (carrier, state, line) state.
type AppetiteProfile struct {
	ID                   string
	CarrierID            string
	State                string
	LineOfBusiness       string
	AppetiteScore        float64 // 0-10
	EligibleClasses      []string
	IneligibleClasses    []string
	PreferredClasses     []string
	TerritoryPreferences map[string]string
	MinPremium           *float64
	MaxPremium           *float64
	RateCompetitiveness  *float64 // 0-100 index
	LastRateChangePct    *float64
	SourceFilingCount    int
	IsCurrent            bool
	ComputedAt           time.Time
}

// AppetiteSignal is an immutable event emitted by the change detector.
type AppetiteSignal struct {
	ID           string
	ProfileID    *string // nil only on new_state_entry
	CarrierID    string
	State        string
	SignalType   string
	Strength     int // 1-10
	SignalDate   time.Time
	Description  string
	SourceFiling *string
	Acknowledged bool
	CreatedAt    time.Time
}

// ScrapeLog is one row per scrape run.
type ScrapeLog struct {
	ID             int64
	State          string
	Pass           string // listing | detail
	Status         string // running | complete | failed
	StartedAt      time.Time
	CompletedAt    *time.Time
	FilingsFound   int
	FilingsScraped int
	DocsDownloaded int
	Errors         []string
	Metadata       map[string]any
}

// ParseLog is one row per parsed document.
type ParseLog struct {
	ID            int64
	DocumentID    string
	ParserType    string
	Status        string // completed | partial | failed
	ItemsByKind   map[string]int
	ConfidenceAvg float64
	ConfidenceMin float64
	AICalls       int
	AITokensIn    int64
	AITokensOut   int64
	CostUSD       float64
	Errors        []string
	Warnings      []string
	DurationMS    int64
	CreatedAt     time.Time
}

// QuoteLog is one row per pricing call.
type QuoteLog struct {
	ID          int64
	ProductLine string // pmi | title
	Request     json.RawMessage
	Summary     json.RawMessage
	BestCarrier string
	BestRate    float64
	ElapsedMS   int64
	CreatedAt   time.Time
}

// PMIRateCard is a curated mortgage-insurance rate card. One card per
// (carrier, premium type, state) is current at a time; state 'ALL' is the
// countrywide fallback.
type PMIRateCard struct {
	ID            string
	CarrierID     string
	PremiumType   string // monthly | single
	State         string
	Version       string
	EffectiveDate *time.Time
	IsCurrent     bool
	SupersededBy  *string
	Rates         []PMIRate
	Adjustments   []PMIAdjustment
}

// PMIRate is one cell of the LTV x FICO x coverage grid.
type PMIRate struct {
	LTVMin      float64
	LTVMax      float64
	FICOMin     int
	FICOMax     int
	CoveragePct float64
	Rate        float64 // bps of loan amount, annualized
}

// PMIAdjustment is an ordered rate adjustment with a structured condition.
type PMIAdjustment struct {
	Position  int
	Name      string
	Condition json.RawMessage
	Method    string // add | multiply | override
	Value     float64
}

// TitleRateCard is a curated title-insurance rate card.
type TitleRateCard struct {
	ID            string
	CarrierID     string
	PolicyType    string // owner | lender
	State         string
	Version       string
	EffectiveDate *time.Time
	IsPromulgated bool
	IsCurrent     bool
	SupersededBy  *string
	Bands         []TitleRate
	Simultaneous  []TitleSimultaneous
	Reissue       []TitleReissue
	Endorsements  []TitleEndorsement
}

// TitleRate is one coverage band of a title rate card.
type TitleRate struct {
	CoverageMin     float64
	CoverageMax     float64
	RatePerThousand float64
	FlatFee         float64
	MinimumPremium  float64
}

// TitleSimultaneous is a simultaneous-issue discount band keyed by loan amount.
type TitleSimultaneous struct {
	LoanMin                 float64
	LoanMax                 float64
	DiscountRatePerThousand *float64
	DiscountPct             *float64
	FlatFee                 float64
}

// TitleReissue is a reissue-credit tier keyed by prior-policy age in years.
type TitleReissue struct {
	YearsMin  float64
	YearsMax  float64
	CreditPct float64
}

// TitleEndorsement is a priced endorsement code.
type TitleEndorsement struct {
	Code            string
	Description     string
	FlatFee         float64
	RatePerThousand float64
	PctOfBase       float64
}

// CarrierRanking is one carrier's position for a class code in a market,
// cheapest rate first.
type CarrierRanking struct {
	State          string
	LineOfBusiness string
	ClassCode      string
	CarrierID      string
	Rank           int
	AvgRate        float64
}

// MarketIntel is one computed market report row per (state, line, window).
type MarketIntel struct {
	ID                  string
	State               string
	LineOfBusiness      string
	PeriodDays          int
	FilingCount         int
	AvgRateChangePct    *float64
	MedianRateChangePct *float64
	RateIncreases       int
	RateDecreases       int
	NewEntrants         []string
	Withdrawals         []string
	TopSignals          []map[string]any
	MarketTrend         string // hardening | softening | stable
	ComputedAt          time.Time
}

// ReviewItem is a low-confidence extraction awaiting human triage.
type ReviewItem struct {
	ID         int64
	DocumentID string
	FieldPath  string
	FieldValue string
	Confidence float64
	Priority   string // high | medium
	Resolved   bool
	CreatedAt  time.Time
}
