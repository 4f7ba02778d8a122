package portal

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hermes-intel/hermes/internal/resilience"
	"github.com/hermes-intel/hermes/internal/store"
)

// NormalizeStatus maps portal status strings onto the fixed vocabulary.
// SERFF skins disagree on wording; match on substrings of the lowercased text.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "withdraw"):
		return store.StatusWithdrawn
	case strings.Contains(s, "disapprov"), strings.Contains(s, "reject"), strings.Contains(s, "denied"):
		return store.StatusDisapproved
	case strings.Contains(s, "approv"), strings.Contains(s, "acknowledg"),
		strings.Contains(s, "accepted"), strings.Contains(s, "filed"),
		strings.Contains(s, "closed"), strings.Contains(s, "effective"):
		return store.StatusApproved
	default:
		return store.StatusPending
	}
}

// NormalizeFilingType maps portal filing-type strings onto the fixed
// vocabulary. Strings matching none of the known types return empty so the
// filing's type column stays null instead of guessing.
func NormalizeFilingType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "withdraw") {
		return store.FilingWithdrawal
	}

	hasRate := strings.Contains(s, "rate") || strings.Contains(s, "loss cost")
	hasRule := strings.Contains(s, "rule")
	hasForm := strings.Contains(s, "form")
	switch {
	case hasRate && (hasRule || hasForm):
		return store.FilingRateRuleForm
	case hasRate:
		return store.FilingRate
	case hasRule:
		return store.FilingRule
	case hasForm:
		return store.FilingForm
	default:
		return ""
	}
}

var trackingPrefixRe = regexp.MustCompile(`^[A-Za-z]+-`)

// NumericFilingID derives the portal's internal numeric filing id from a
// SERFF tracking number: strip the issuer prefix, then a single optional G.
// Tracking numbers carrying -G after the prefix are group-restricted and not
// publicly addressable; those return a portal_permanent error.
func NumericFilingID(tracking string) (string, error) {
	rest := trackingPrefixRe.ReplaceAllString(strings.TrimSpace(tracking), "")
	if strings.HasPrefix(strings.ToUpper(rest), "G-") {
		return "", resilience.WithKind(resilience.KindPortalPermanent,
			eris.Errorf("portal: tracking %q is group-restricted", tracking))
	}
	if len(rest) > 0 && (rest[0] == 'G' || rest[0] == 'g') {
		rest = rest[1:]
	}

	if rest == "" {
		return "", resilience.WithKind(resilience.KindPortalPermanent,
			eris.Errorf("portal: tracking %q has no numeric part", tracking))
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return "", resilience.WithKind(resilience.KindPortalPermanent,
				eris.Errorf("portal: tracking %q is not numerically addressable", tracking))
		}
	}
	return rest, nil
}

var companyTitleCaser = cases.Title(language.AmericanEnglish)

// Corporate tokens kept uppercase when title-casing shouty company names.
var companyAcronyms = map[string]string{
	"Llc": "LLC", "Lp": "LP", "Llp": "LLP", "Rrg": "RRG", "Usa": "USA", "Us": "US",
}

// NormalizeCompanyName collapses whitespace and title-cases all-caps carrier
// names the portal serves ("ACME INSURANCE COMPANY" -> "Acme Insurance
// Company"). Mixed-case names pass through untouched.
func NormalizeCompanyName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" || name != strings.ToUpper(name) {
		return name
	}
	name = companyTitleCaser.String(strings.ToLower(name))
	words := strings.Split(name, " ")
	for i, w := range words {
		trimmed := strings.TrimRight(w, ".,")
		if fixed, ok := companyAcronyms[trimmed]; ok {
			words[i] = fixed + w[len(trimmed):]
		}
	}
	return strings.Join(words, " ")
}

// IsRestrictedTracking reports whether a tracking number names a
// group-restricted filing (contains -G after the issuer prefix).
func IsRestrictedTracking(tracking string) bool {
	rest := trackingPrefixRe.ReplaceAllString(strings.TrimSpace(tracking), "")
	return strings.HasPrefix(strings.ToUpper(rest), "G-") ||
		strings.Contains(strings.ToUpper(tracking), "-G-")
}
