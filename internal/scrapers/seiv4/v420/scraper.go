// Package v420 is the production scraper for upstream release 4.2.0.
package v420

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
	"github.com/conectasei/conectasei/internal/scrapers/seiv4"
	"github.com/conectasei/conectasei/internal/services/browser"
)

const version = "4.2.0"

const downloadTimeout = 60 * time.Second

// Navigation and render entry points, swappable in tests.
var (
	navigateFn  = browser.Navigate
	renderPDFFn = browser.RenderPagePDF
)

// Scraper drives the 4.2.0 external-access interface.
type Scraper struct {
	seiv4.Base
}

// New creates the 4.2.0 scraper.
func New(logger arbor.ILogger) *Scraper {
	return &Scraper{Base: seiv4.Base{Logger: logger}}
}

var _ interfaces.ScraperPlugin = (*Scraper)(nil)

// Version is the exact upstream release this plugin targets.
func (sc *Scraper) Version() string {
	return version
}

// DetectVersion inspects the loaded page for 4.2.x version markers.
func (sc *Scraper) DetectVersion(s interfaces.Session) (bool, error) {
	var detected string
	expr := `(function(){
		var e = document.querySelector('[data-sei-version]');
		if (e) return e.getAttribute('data-sei-version') || "";
		var m = document.querySelector('meta[name="sei-version"]');
		if (m) return m.getAttribute('content') || "";
		return String(window.SEI_VERSION || window.seiVersion || "");
	})()`
	if err := chromedp.Run(s.Ctx(), chromedp.Evaluate(expr, &detected)); err != nil {
		return false, fmt.Errorf("%w: probing version: %v", models.ErrNavigation, err)
	}
	return strings.HasPrefix(detected, "4.2"), nil
}

// ListProcesses walks the paginated listing and collects every
// (process number, link ID) pair visible to the account.
func (sc *Scraper) ListProcesses(s interfaces.Session) ([]models.ProcessListing, error) {
	var origin string
	if err := chromedp.Run(s.Ctx(), chromedp.Evaluate("window.location.origin", &origin)); err != nil {
		return nil, fmt.Errorf("%w: reading page origin: %v", models.ErrNavigation, err)
	}
	if err := browser.Navigate(s, origin+seiv4.ProcessListPath); err != nil {
		return nil, err
	}

	if err := chromedp.Run(s.Ctx(),
		chromedp.WaitVisible(seiv4.ProcessSelectors.ProcessTable, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("%w: waiting for process table: %v", models.ErrPlugin, err)
	}

	seen := map[string]bool{}
	var listings []models.ProcessListing

	for page := 1; ; page++ {
		var html string
		if err := chromedp.Run(s.Ctx(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("%w: reading listing page: %v", models.ErrPlugin, err)
		}

		pageListings, err := sc.parseListing(html)
		if err != nil {
			return nil, err
		}
		for _, l := range pageListings {
			key := l.ProcessNumber + "|" + l.LinkID
			if seen[key] {
				continue
			}
			seen[key] = true
			listings = append(listings, l)
		}

		var hasNext bool
		if err := chromedp.Run(s.Ctx(), seiv4.EvalPresent("#lnkInfraProximaPaginaSuperior", &hasNext)); err != nil {
			return nil, fmt.Errorf("%w: checking pagination: %v", models.ErrPlugin, err)
		}
		if !hasNext {
			break
		}
		if err := chromedp.Run(s.Ctx(),
			chromedp.Click("#lnkInfraProximaPaginaSuperior", chromedp.ByQuery),
			chromedp.WaitVisible(seiv4.ProcessSelectors.ProcessTable, chromedp.ByQuery),
		); err != nil {
			return nil, fmt.Errorf("%w: advancing listing page: %v", models.ErrNavigation, err)
		}
	}

	sc.Logger.Debug().Int("count", len(listings)).Msg("Process listing extracted")
	return listings, nil
}

func (sc *Scraper) parseListing(html string) ([]models.ProcessListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing listing html: %v", models.ErrPlugin, err)
	}

	var listings []models.ProcessListing
	doc.Find(seiv4.ProcessSelectors.ProcessRow).Each(func(_ int, row *goquery.Selection) {
		link := row.Find(seiv4.ProcessSelectors.ProcessLink).First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		number := strings.TrimSpace(link.Text())
		if number == "" || href == "" {
			return
		}
		if !models.ValidProcessNumber(number) {
			return
		}
		linkID := seiv4.NormalizeLink(href)
		if linkID == "" {
			return
		}
		listings = append(listings, models.ProcessListing{
			ProcessNumber: number,
			LinkID:        linkID,
		})
	})
	return listings, nil
}

// ListDocuments parses the document tree of the open process. Rows whose
// link carries an alert() handler are restricted and skipped.
func (sc *Scraper) ListDocuments(s interfaces.Session) (map[string]models.DocumentRecord, error) {
	if err := chromedp.Run(s.Ctx(),
		chromedp.WaitVisible(seiv4.DocumentSelectors.DocumentTable, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("%w: waiting for document table: %v", models.ErrPlugin, err)
	}

	var html string
	if err := chromedp.Run(s.Ctx(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("%w: reading process page: %v", models.ErrPlugin, err)
	}
	return sc.parseDocuments(html)
}

func (sc *Scraper) parseDocuments(html string) (map[string]models.DocumentRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing document html: %v", models.ErrPlugin, err)
	}

	records := map[string]models.DocumentRecord{}
	doc.Find(seiv4.DocumentSelectors.DocumentRow).Each(func(_ int, row *goquery.Selection) {
		link := row.Find(seiv4.DocumentSelectors.DocumentLink).First()
		if link.Length() == 0 {
			return
		}
		if onclick, ok := link.Attr("onclick"); ok && strings.Contains(onclick, "alert(") {
			return
		}
		number := strings.TrimSpace(link.Text())
		if !models.ValidDocumentNumber(number) {
			return
		}

		docType := strings.TrimSpace(row.Find(seiv4.DocumentSelectors.TypeColumn).First().Text())
		docDate := strings.TrimSpace(row.Find(seiv4.DocumentSelectors.DateColumn).First().Text())
		signer := strings.TrimSpace(row.Find(seiv4.DocumentSelectors.SignerColumn).First().Text())
		if docType == "" || docDate == "" {
			return
		}

		records[number] = models.DocumentRecord{
			Type:   docType,
			Date:   docDate,
			Status: models.DocumentNotDownloaded,
			Signer: signer,
		}
	})
	return records, nil
}

// documentXPath targets the link of one document row by its number text.
func documentXPath(documentNumber string) string {
	return fmt.Sprintf(
		`//table[@id="tblDocumentos"]//tr[contains(@class,"infraTrClara")]//td[2]//a[normalize-space(text())=%q]`,
		documentNumber)
}

// DownloadDocument alt-clicks the document link to force a file download.
// Documents the upstream serves as HTML views are printed to PDF.
func (sc *Scraper) DownloadDocument(s interfaces.Session, documentNumber string) (interfaces.DownloadedFile, error) {
	xpath := documentXPath(documentNumber)

	trigger := chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(xpath, &nodes, chromedp.BySearch).Do(ctx); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return fmt.Errorf("document link %s not found", documentNumber)
		}
		return chromedp.MouseClickNode(nodes[0], chromedp.ButtonModifiers(input.ModifierAlt)).Do(ctx)
	})

	path, suggested, err := browser.CaptureDownload(s, trigger, downloadTimeout)
	if err != nil {
		return interfaces.DownloadedFile{}, err
	}

	ext := strings.ToLower(filepath.Ext(suggested))
	if ext != ".html" && ext != ".htm" {
		return interfaces.DownloadedFile{Path: path, SuggestedName: suggested}, nil
	}
	file, err := sc.renderHTMLDownload(s, path, suggested)
	if err != nil {
		return interfaces.DownloadedFile{}, err
	}
	sc.Logger.Debug().Str("document", documentNumber).Msg("HTML document rendered to PDF")
	return file, nil
}

// renderHTMLDownload prints a captured HTML view to PDF and removes the
// HTML source; only the PDF leaves the session.
func (sc *Scraper) renderHTMLDownload(s interfaces.Session, path, suggested string) (interfaces.DownloadedFile, error) {
	if err := navigateFn(s, "file://"+path); err != nil {
		return interfaces.DownloadedFile{}, err
	}
	pdfPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".pdf"
	if err := renderPDFFn(s, pdfPath); err != nil {
		return interfaces.DownloadedFile{}, err
	}
	if err := os.Remove(path); err != nil {
		sc.Logger.Warn().Err(err).Str("file", path).Msg("Failed to remove rendered HTML source")
	}

	pdfName := strings.TrimSuffix(suggested, filepath.Ext(suggested)) + ".pdf"
	return interfaces.DownloadedFile{Path: pdfPath, SuggestedName: pdfName, RenderedFromHTML: true}, nil
}
