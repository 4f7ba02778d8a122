package portal

import (
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/resilience"
)

// SearchFilter narrows a portal search. Zero-value fields are left blank on
// the form.
type SearchFilter struct {
	BusinessType string // portal business-type label, e.g. "Property & Casualty"
	NAICCode     string
	ProductName  string
	DateFrom     *time.Time
}

// ResultRow is one row of the search results grid.
type ResultRow struct {
	SERFFTracking string
	CompanyName   string
	FilingType    string
	Status        string
	FiledDate     *time.Time
	EffectiveDate *time.Time
}

var (
	searchButtonSelectors = []string{
		`button[id$='searchButton']`,
		`input[value='Search']`,
		`button[type='submit']`,
	}
	resultsTableSelectors = []string{
		`div[id$='searchResults'] table`,
		`div.ui-datatable table`,
		`table[role='grid']`,
	}
)

// RunSearch fills the search form and submits it. The business-type control
// is a styled dropdown over a hidden select; prefer the native select and
// fall back to driving the widget.
func (n *Navigator) RunSearch(filter SearchFilter) error {
	if filter.BusinessType != "" {
		if err := n.selectBusinessType(filter.BusinessType); err != nil {
			return resilience.WithKind(resilience.KindPortalTransient, err)
		}
	}
	if filter.NAICCode != "" {
		if err := n.fillInput([]string{`input[id$='naicCode']`, `input[name*='naic']`}, filter.NAICCode); err != nil {
			return resilience.WithKind(resilience.KindPortalTransient, err)
		}
	}
	if filter.ProductName != "" {
		if err := n.fillInput([]string{`input[id$='productName']`, `input[name*='product']`}, filter.ProductName); err != nil {
			return resilience.WithKind(resilience.KindPortalTransient, err)
		}
	}
	if filter.DateFrom != nil {
		from := filter.DateFrom.Format("01/02/2006")
		if err := n.fillInput([]string{`input[id$='dateFrom_input']`, `input[id$='dispositionDateFrom']`, `input[name*='dateFrom']`}, from); err != nil {
			return resilience.WithKind(resilience.KindPortalTransient, err)
		}
	}

	el := n.firstElement(searchButtonSelectors)
	if el == nil {
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.New("portal: search button not found"))
	}
	if err := n.clickAndSettle(el); err != nil {
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrap(err, "portal: submit search"))
	}
	return n.checkBlocked()
}

func (n *Navigator) selectBusinessType(label string) error {
	if has, sel, err := n.page.Has(`select[id$='businessType']`); err == nil && has {
		return sel.Select([]string{label}, true, rod.SelectorTypeText)
	}

	// Widget path: open the styled dropdown, click the matching item.
	trigger := n.firstElement([]string{
		`div[id$='businessType'] .ui-selectonemenu-trigger`,
		`div[id$='businessType'] label`,
	})
	if trigger == nil {
		return eris.New("portal: business type control not found")
	}
	if err := trigger.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return eris.Wrap(err, "portal: open business type dropdown")
	}
	item, err := n.page.Timeout(5 * time.Second).ElementR(`li`, "/"+jsRegexEscape(label)+"/i")
	if err != nil {
		return eris.Wrapf(err, "portal: business type %q not in dropdown", label)
	}
	if err := item.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return eris.Wrap(err, "portal: pick business type")
	}
	return n.waitOverlayGone()
}

func (n *Navigator) fillInput(selectors []string, value string) error {
	el := n.firstElement(selectors)
	if el == nil {
		return eris.Errorf("portal: no input matches %v", selectors)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(value)
}

// ParseResultsPage reads the current results grid. Columns are located by
// header substring, never by index, because the portal reorders columns
// between skins.
func (n *Navigator) ParseResultsPage() ([]ResultRow, error) {
	table := n.firstElement(resultsTableSelectors)
	if table == nil {
		return nil, resilience.WithKind(resilience.KindPortalTransient,
			eris.New("portal: results table not found"))
	}

	headers, err := table.Elements(`thead th`)
	if err != nil {
		return nil, resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrap(err, "portal: results headers"))
	}
	cols := map[string]int{}
	for i, h := range headers {
		text, err := h.Text()
		if err != nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(text))
		switch {
		case strings.Contains(key, "serff"):
			cols["tracking"] = i
		case strings.Contains(key, "company"):
			cols["company"] = i
		case strings.Contains(key, "filing type"), strings.Contains(key, "type of filing"):
			cols["type"] = i
		case strings.Contains(key, "status"), strings.Contains(key, "disposition"):
			cols["status"] = i
		case strings.Contains(key, "effective"):
			cols["effective"] = i
		case strings.Contains(key, "submitted"), strings.Contains(key, "filed"):
			cols["filed"] = i
		}
	}
	if _, ok := cols["tracking"]; !ok {
		return nil, resilience.WithKind(resilience.KindPortalTransient,
			eris.New("portal: SERFF tracking column not found"))
	}

	trs, err := table.Elements(`tbody tr`)
	if err != nil {
		return nil, resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrap(err, "portal: results rows"))
	}

	var rows []ResultRow
	for _, tr := range trs {
		tds, err := tr.Elements(`td`)
		if err != nil || len(tds) == 0 {
			continue
		}
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(tds) {
				return ""
			}
			text, err := tds[idx].Text()
			if err != nil {
				return ""
			}
			return strings.TrimSpace(text)
		}

		tracking := cell("tracking")
		if tracking == "" {
			continue
		}
		rows = append(rows, ResultRow{
			SERFFTracking: tracking,
			CompanyName:   cell("company"),
			FilingType:    cell("type"),
			Status:        cell("status"),
			FiledDate:     parsePortalDate(cell("filed")),
			EffectiveDate: parsePortalDate(cell("effective")),
		})
	}
	zap.L().Debug("results page parsed",
		zap.String("component", "portal"),
		zap.Int("rows", len(rows)))
	return rows, nil
}

// ClickNextPage advances the results grid one page. Returns false when the
// paginator's next control is disabled (last page). Page turnover is detected
// by polling two signals: the paginator summary text and the first row's
// data-rk key, either of which changes when new rows arrive.
func (n *Navigator) ClickNextPage() (bool, error) {
	next := n.firstElement([]string{`a.ui-paginator-next`, `span.ui-paginator-next`})
	if next == nil {
		return false, nil
	}
	cls, err := next.Attribute("class")
	if err == nil && cls != nil && strings.Contains(*cls, "ui-state-disabled") {
		return false, nil
	}

	beforeText := n.paginatorText()
	beforeKey := n.firstRowKey()

	if err := next.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrap(err, "portal: click next page"))
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if n.paginatorText() != beforeText || n.firstRowKey() != beforeKey {
			if err := n.waitOverlayGone(); err != nil {
				return false, resilience.WithKind(resilience.KindPortalTransient, err)
			}
			return true, nil
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false, resilience.WithKind(resilience.KindPortalTransient,
		eris.New("portal: next page never rendered"))
}

func (n *Navigator) paginatorText() string {
	el := n.firstElement([]string{`span.ui-paginator-current`})
	if el == nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (n *Navigator) firstRowKey() string {
	el := n.firstElement([]string{`tbody tr[data-rk]`})
	if el == nil {
		return ""
	}
	key, err := el.Attribute("data-rk")
	if err != nil || key == nil {
		return ""
	}
	return *key
}

var portalDateLayouts = []string{"01/02/2006", "1/2/2006", "2006-01-02", "Jan 2, 2006"}

func parsePortalDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range portalDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return &d
		}
	}
	return nil
}

// jsRegexEscape escapes regex metacharacters for use in a rod text matcher.
func jsRegexEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$/`, c) {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
