package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// Session is one live browser tab bound to a tenant account.
type Session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	tempDir    string
	navTimeout time.Duration
	limiter    *rate.Limiter
	pool       *Pool
	logger     arbor.ILogger
	releaseOnce sync.Once
}

var _ interfaces.Session = (*Session)(nil)

// Ctx returns the tab context for chromedp actions.
func (s *Session) Ctx() context.Context {
	return s.ctx
}

// TempDir is the scratch directory downloads land in. Wiped on release.
func (s *Session) TempDir() string {
	return s.tempDir
}

// Release closes the tab, wipes the temp dir and frees the pool slot.
// Safe to call more than once.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		if s.tempDir != "" {
			if err := os.RemoveAll(s.tempDir); err != nil {
				s.logger.Warn().Err(err).Str("dir", s.tempDir).Msg("Failed to remove session temp dir")
			}
		}
		if s.pool != nil {
			<-s.pool.slots
		}
		s.logger.Debug().Msg("Browser session released")
	})
}

// installDialogHandler auto-dismisses javascript dialogs so a stray confirm
// cannot wedge the tab.
func (s *Session) installDialogHandler() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go func() {
				if err := chromedp.Run(s.ctx, page.HandleJavaScriptDialog(true)); err != nil {
					s.logger.Warn().Err(err).Msg("Failed to dismiss javascript dialog")
				}
			}()
		}
	})
}

// Navigate loads a URL inside the session's navigation timeout, honoring
// the per-tenant pacing limiter. Fake sessions without pacing fall back to
// a plain timed navigation.
func Navigate(s interfaces.Session, url string) error {
	timeout := 30 * time.Second
	if bs, ok := s.(*Session); ok {
		if bs.navTimeout > 0 {
			timeout = bs.navTimeout
		}
		if bs.limiter != nil {
			if err := bs.limiter.Wait(bs.ctx); err != nil {
				return fmt.Errorf("%w: %v", models.ErrNavigation, err)
			}
		}
	}

	navCtx, cancel := context.WithTimeout(s.Ctx(), timeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: navigating to %s: %v", models.ErrNavigation, url, err)
	}
	return nil
}

// CaptureDownload arms download interception on the session's temp dir, runs
// trigger (the click that starts the download), and waits for the file to
// finish. Returns the local path and the upstream's suggested filename.
func CaptureDownload(s interfaces.Session, trigger chromedp.Action, timeout time.Duration) (string, string, error) {
	ctx := s.Ctx()

	type begun struct {
		guid      string
		suggested string
	}
	started := make(chan begun, 1)
	done := make(chan string, 1)

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()

	var mu sync.Mutex
	var want string

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			mu.Lock()
			want = e.GUID
			mu.Unlock()
			select {
			case started <- begun{guid: e.GUID, suggested: e.SuggestedFilename}:
			default:
			}
		case *cdpbrowser.EventDownloadProgress:
			mu.Lock()
			match := e.GUID == want
			mu.Unlock()
			if !match {
				return
			}
			if e.State == cdpbrowser.DownloadProgressStateCompleted {
				select {
				case done <- e.GUID:
				default:
				}
			}
		}
	})

	arm := cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(s.TempDir()).
		WithEventsEnabled(true)
	if err := chromedp.Run(ctx, arm); err != nil {
		return "", "", fmt.Errorf("%w: arming download capture: %v", models.ErrNavigation, err)
	}

	if err := chromedp.Run(ctx, trigger); err != nil {
		return "", "", fmt.Errorf("%w: triggering download: %v", models.ErrNavigation, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var info begun
	select {
	case info = <-started:
	case <-deadline.C:
		return "", "", fmt.Errorf("%w: download did not start within %s", models.ErrNavigation, timeout)
	case <-ctx.Done():
		return "", "", fmt.Errorf("%w: %v", models.ErrNavigation, ctx.Err())
	}

	select {
	case guid := <-done:
		return filepath.Join(s.TempDir(), guid), info.suggested, nil
	case <-deadline.C:
		return "", "", fmt.Errorf("%w: download did not complete within %s", models.ErrNavigation, timeout)
	case <-ctx.Done():
		return "", "", fmt.Errorf("%w: %v", models.ErrNavigation, ctx.Err())
	}
}

// RenderPagePDF prints the page currently loaded in the session to a PDF
// file. Used for documents the upstream serves as inline HTML views.
func RenderPagePDF(s interfaces.Session, outPath string) error {
	var buf []byte
	action := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		return err
	})
	if err := chromedp.Run(s.Ctx(), action); err != nil {
		return fmt.Errorf("%w: printing page to pdf: %v", models.ErrNavigation, err)
	}
	if err := os.WriteFile(outPath, buf, 0644); err != nil {
		return fmt.Errorf("failed to write rendered pdf: %w", err)
	}
	return nil
}
