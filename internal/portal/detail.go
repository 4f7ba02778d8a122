package portal

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hermes-intel/hermes/internal/resilience"
)

// Sentinel causes for detail-page failures. Both are portal_permanent; the
// orchestrator records distinct scrape statuses for them.
var (
	ErrUnauthorized = eris.New("portal: filing not publicly accessible")
	ErrNotFound     = eris.New("portal: filing detail unavailable")
)

// DetailMetadata is everything harvested from one filing summary page.
// Fields carries every raw label/value pair found; the typed members are the
// mapped subset the pipeline stores.
type DetailMetadata struct {
	CompanyName          string
	NAICCode             string
	LineOfBusiness       string
	FilingType           string
	Status               string
	FiledDate            *time.Time
	EffectiveDate        *time.Time
	DispositionDate      *time.Time
	OverallRateChangePct *float64
	Fields               map[string]string
}

// OpenDetail navigates to a filing's summary page by deriving the portal's
// numeric id from the SERFF tracking number. Session expiry is transient;
// unauthorized and error pages are permanent.
func (n *Navigator) OpenDetail(tracking string) error {
	id, err := NumericFilingID(tracking)
	if err != nil {
		return err
	}

	detailURL := strings.TrimRight(n.cfg.BaseURL, "/") + "/filingSummary.xhtml?filingId=" + id
	if err := n.page.Navigate(detailURL); err != nil {
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrapf(err, "portal: navigate detail %s", tracking))
	}
	if err := n.page.WaitLoad(); err != nil {
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrapf(err, "portal: load detail %s", tracking))
	}
	if err := n.checkBlocked(); err != nil {
		return err
	}

	info, err := n.page.Info()
	if err != nil {
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrap(err, "portal: page info"))
	}
	html, err := n.page.HTML()
	if err != nil {
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrap(err, "portal: page html"))
	}
	body := strings.ToLower(html)
	currentURL := strings.ToLower(info.URL)

	switch {
	case strings.Contains(currentURL, "sessionexpired"), strings.Contains(body, "session expired"),
		strings.Contains(body, "session has expired"):
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Errorf("portal: session expired opening %s", tracking))
	case strings.Contains(currentURL, "unauthorized"), strings.Contains(body, "not authorized"):
		return resilience.WithKind(resilience.KindPortalPermanent,
			eris.Wrapf(ErrUnauthorized, "tracking %s", tracking))
	case strings.Contains(currentURL, "error"), strings.Contains(body, "http status 500"),
		strings.Contains(body, "internal server error"):
		return resilience.WithKind(resilience.KindPortalPermanent,
			eris.Wrapf(ErrNotFound, "tracking %s", tracking))
	case !strings.Contains(currentURL, "filingsummary"):
		return resilience.WithKind(resilience.KindPortalTransient,
			eris.Errorf("portal: detail redirect landed on %s", info.URL))
	}
	return nil
}

// Label substrings mapping harvested fields onto DetailMetadata members.
// Checked in order; first match wins per field.
var detailFieldKeys = []struct {
	target string
	keys   []string
}{
	{"company", []string{"company name", "company"}},
	{"naic", []string{"naic"}},
	{"line", []string{"type of insurance", "line of business", "sub-toi", "toi"}},
	{"filing_type", []string{"filing type", "type of filing"}},
	{"status", []string{"filing status", "disposition status", "status"}},
	{"filed", []string{"date submitted", "submission date", "date filed"}},
	{"effective", []string{"effective date"}},
	{"disposition", []string{"disposition date"}},
	{"rate_change", []string{"overall rate change", "overall percentage", "rate change"}},
}

var rateChangeRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*%`)

// ExtractDetailMetadata harvests the summary page with stacked strategies:
// label/for pairs, two-cell table rows, and definition lists. The strategies
// run in that order and never overwrite an already-harvested key, so the most
// structured source wins. A final regex sweep recovers the overall rate
// change when no labeled field carried it.
func (n *Navigator) ExtractDetailMetadata() (DetailMetadata, error) {
	meta := DetailMetadata{Fields: map[string]string{}}

	n.harvestLabelPairs(meta.Fields)
	n.harvestTableRows(meta.Fields)
	n.harvestDefinitionLists(meta.Fields)

	mapped := map[string]string{}
	for rawKey, rawVal := range meta.Fields {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		for _, fk := range detailFieldKeys {
			if _, done := mapped[fk.target]; done {
				continue
			}
			for _, sub := range fk.keys {
				if strings.Contains(key, sub) {
					mapped[fk.target] = strings.TrimSpace(rawVal)
					break
				}
			}
		}
	}

	meta.CompanyName = mapped["company"]
	meta.NAICCode = firstNumericToken(mapped["naic"])
	meta.LineOfBusiness = mapped["line"]
	meta.FilingType = mapped["filing_type"]
	meta.Status = mapped["status"]
	meta.FiledDate = parsePortalDate(mapped["filed"])
	meta.EffectiveDate = parsePortalDate(mapped["effective"])
	meta.DispositionDate = parsePortalDate(mapped["disposition"])

	if raw, ok := mapped["rate_change"]; ok {
		if m := rateChangeRe.FindStringSubmatch(raw); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				meta.OverallRateChangePct = &pct
			}
		}
	}
	if meta.OverallRateChangePct == nil {
		n.sweepRateChange(&meta)
	}

	if len(meta.Fields) == 0 {
		return meta, resilience.WithKind(resilience.KindPortalTransient,
			eris.New("portal: no metadata fields on detail page"))
	}
	return meta, nil
}

func (n *Navigator) harvestLabelPairs(fields map[string]string) {
	labels, err := n.page.Elements(`label[for]`)
	if err != nil {
		return
	}
	for _, label := range labels {
		forAttr, err := label.Attribute("for")
		if err != nil || forAttr == nil {
			continue
		}
		key, err := label.Text()
		if err != nil || strings.TrimSpace(key) == "" {
			continue
		}
		has, target, err := n.page.Has(`[id='` + *forAttr + `']`)
		if err != nil || !has {
			continue
		}
		val, err := target.Text()
		if err != nil {
			continue
		}
		setIfEmpty(fields, key, val)
	}
}

func (n *Navigator) harvestTableRows(fields map[string]string) {
	trs, err := n.page.Elements(`tr`)
	if err != nil {
		return
	}
	for _, tr := range trs {
		cells, err := tr.Elements(`td, th`)
		if err != nil || len(cells) != 2 {
			continue
		}
		key, err := cells[0].Text()
		if err != nil {
			continue
		}
		val, err := cells[1].Text()
		if err != nil {
			continue
		}
		setIfEmpty(fields, key, val)
	}
}

func (n *Navigator) harvestDefinitionLists(fields map[string]string) {
	dls, err := n.page.Elements(`dl`)
	if err != nil {
		return
	}
	for _, dl := range dls {
		dts, err := dl.Elements(`dt`)
		if err != nil {
			continue
		}
		dds, err := dl.Elements(`dd`)
		if err != nil || len(dds) < len(dts) {
			continue
		}
		for i, dt := range dts {
			key, err := dt.Text()
			if err != nil {
				continue
			}
			val, err := dds[i].Text()
			if err != nil {
				continue
			}
			setIfEmpty(fields, key, val)
		}
	}
}

var rateChangeSweepRe = regexp.MustCompile(`(?i)(?:overall\s+)?(?:rate|percentage)\s+change[^%\-\d]{0,60}(-?\d+(?:\.\d+)?)\s*%`)

func (n *Navigator) sweepRateChange(meta *DetailMetadata) {
	html, err := n.page.HTML()
	if err != nil {
		return
	}
	if m := rateChangeSweepRe.FindStringSubmatch(html); m != nil {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
			meta.OverallRateChangePct = &pct
		}
	}
}

// DocumentLink is one downloadable attachment on the detail page.
type DocumentLink struct {
	Name string
	href string
	el   *rod.Element
}

var documentLinkSelectors = []string{
	`a[href*='download']`,
	`a[id*='download']`,
	`a[href$='.pdf']`,
	`a[onclick*='download']`,
}

// DocumentLinks lists the attachments on the current detail page,
// de-duplicated by link text.
func (n *Navigator) DocumentLinks() ([]DocumentLink, error) {
	seen := map[string]bool{}
	var links []DocumentLink
	for _, sel := range documentLinkSelectors {
		els, err := n.page.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			name, err := el.Text()
			if err != nil {
				continue
			}
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			link := DocumentLink{Name: name, el: el}
			if href, err := el.Attribute("href"); err == nil && href != nil {
				link.href = *href
			}
			links = append(links, link)
		}
	}
	return links, nil
}

// Download fetches one attachment into dir and returns the downloaded file's
// path. Strategy one arms the browser download trap and clicks the link;
// when no download event arrives, strategy two fetches the href through the
// browser's network stack, keeping the portal session cookies.
func (n *Navigator) Download(link DocumentLink, dir string) (string, error) {
	if path, err := n.downloadByClick(link, dir); err == nil {
		return path, nil
	} else {
		zap.L().Debug("click download failed, trying direct fetch",
			zap.String("component", "portal"),
			zap.String("document", link.Name),
			zap.Error(err))
	}
	return n.downloadByFetch(link, dir)
}

func (n *Navigator) downloadByClick(link DocumentLink, dir string) (string, error) {
	if link.el == nil {
		return "", eris.New("portal: no clickable element")
	}
	wait := n.browser.WaitDownload(dir)

	if err := link.el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", eris.Wrap(err, "portal: click document link")
	}

	type downloadResult struct {
		info *proto.PageDownloadWillBegin
		err  error
	}
	done := make(chan downloadResult, 1)
	go func() {
		info, err := wait()
		done <- downloadResult{info, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		return filepath.Join(dir, res.info.GUID), nil
	case <-time.After(n.browser.navTimeout()):
		return "", eris.New("portal: download event timed out")
	}
}

func (n *Navigator) downloadByFetch(link DocumentLink, dir string) (string, error) {
	if link.href == "" || strings.HasPrefix(link.href, "javascript:") {
		return "", resilience.WithKind(resilience.KindPortalTransient,
			eris.Errorf("portal: document %q has no fetchable href", link.Name))
	}
	abs, err := n.absoluteURL(link.href)
	if err != nil {
		return "", resilience.WithKind(resilience.KindPortalTransient, err)
	}

	data, err := n.page.GetResource(abs)
	if err != nil {
		return "", resilience.WithKind(resilience.KindPortalTransient,
			eris.Wrapf(err, "portal: fetch %s", abs))
	}
	if len(data) == 0 {
		return "", resilience.WithKind(resilience.KindPortalTransient,
			eris.Errorf("portal: empty response for %s", abs))
	}

	out, err := os.CreateTemp(dir, "hermes-doc-*")
	if err != nil {
		return "", eris.Wrap(err, "portal: temp file")
	}
	defer out.Close()
	if _, err := out.Write(data); err != nil {
		os.Remove(out.Name())
		return "", eris.Wrap(err, "portal: write download")
	}
	return out.Name(), nil
}

func (n *Navigator) absoluteURL(href string) (string, error) {
	info, err := n.page.Info()
	if err != nil {
		return "", eris.Wrap(err, "portal: page info")
	}
	base, err := url.Parse(info.URL)
	if err != nil {
		return "", eris.Wrap(err, "portal: parse page url")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "portal: parse href %q", href)
	}
	return base.ResolveReference(ref).String(), nil
}

func setIfEmpty(fields map[string]string, key, val string) {
	key = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(key), ":"))
	val = strings.TrimSpace(val)
	if key == "" || val == "" {
		return
	}
	if _, ok := fields[key]; !ok {
		fields[key] = val
	}
}

var numericTokenRe = regexp.MustCompile(`\d{3,}`)

func firstNumericToken(s string) string {
	return numericTokenRe.FindString(s)
}
