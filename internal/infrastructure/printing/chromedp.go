package printing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/municipal/backoffice/internal/infrastructure/config"
)

const (
	defaultChromeTimeout = 30 * time.Second
	mmPerInch            = 25.4
	// footers are drawn inside the bottom margin
	minFooterMarginMM = 10
)

// ChromedpRenderer prints HTML through a headless Chrome, one tab per
// request. At most cfg.MaxConcurrent tabs are open at once.
type ChromedpRenderer struct {
	timeout time.Duration
	tabs    *semaphore.Weighted
	log     *zap.Logger

	alloc  context.Context
	cancel context.CancelFunc
}

// NewChromedpRenderer attaches to cfg.RemoteURL when set and otherwise
// launches a local browser on the first render.
func NewChromedpRenderer(cfg config.PrintingConfig, log *zap.Logger) *ChromedpRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	r := &ChromedpRenderer{
		timeout: cfg.Timeout,
		tabs:    semaphore.NewWeighted(int64(max(cfg.MaxConcurrent, 1))),
		log:     log,
	}
	if r.timeout <= 0 {
		r.timeout = defaultChromeTimeout
	}

	if cfg.RemoteURL != "" {
		r.alloc, r.cancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		r.alloc, r.cancel = chromedp.NewExecAllocator(context.Background(), execOptions(cfg.NoSandbox)...)
	}
	return r
}

func execOptions(noSandbox bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if noSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

func (r *ChromedpRenderer) Render(ctx context.Context, req *RenderRequest) (*PDF, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// waiting for a free tab counts against the request deadline
	if err := r.tabs.Acquire(ctx, 1); err != nil {
		return nil, r.renderError(ctx, timeout, err)
	}
	defer r.tabs.Release(1)

	started := time.Now()
	tab, closeTab := chromedp.NewContext(r.alloc, chromedp.WithLogf(r.log.Sugar().Debugf))
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var data []byte
	if err := chromedp.Run(tab, setContent(wrapDocument(req)), printToPDF(req, &data)); err != nil {
		return nil, r.renderError(ctx, timeout, err)
	}
	if len(data) == 0 {
		return nil, errors.New("chrome returned an empty pdf")
	}

	out := &PDF{Data: data, Pages: countPages(data), Took: time.Since(started)}
	r.log.Debug("PDF rendered",
		zap.Int("bytes", len(out.Data)),
		zap.Int("pages", out.Pages),
		zap.Duration("took", out.Took))
	return out, nil
}

func (r *ChromedpRenderer) renderError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	r.log.Error("Chrome rendering failed", zap.Error(err))
	return fmt.Errorf("render pdf: %w", err)
}

// Close shuts the browser down
func (r *ChromedpRenderer) Close() error {
	r.cancel()
	return nil
}

func setContent(doc string) chromedp.Tasks {
	return chromedp.Tasks{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
	}
}

func printToPDF(req *RenderRequest, out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := printParams(req).Do(ctx)
		*out = data
		return err
	})
}

// printParams converts the request to PrintToPDF arguments, which are in inches
func printParams(req *RenderRequest) *page.PrintToPDFParams {
	width, height := req.PaperSize.Dimensions()
	m := req.Margins
	if req.FooterHTML != "" {
		m.Bottom = max(m.Bottom, minFooterMarginMM)
	}
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPaperWidth(width / mmPerInch).
		WithPaperHeight(height / mmPerInch).
		WithMarginTop(m.Top / mmPerInch).
		WithMarginRight(m.Right / mmPerInch).
		WithMarginBottom(m.Bottom / mmPerInch).
		WithMarginLeft(m.Left / mmPerInch).
		WithLandscape(req.Landscape).
		WithDisplayHeaderFooter(req.FooterHTML != "").
		WithHeaderTemplate("<span></span>").
		WithFooterTemplate(req.FooterHTML)
}

// wrapDocument turns an HTML fragment into a complete UTF-8 document
func wrapDocument(req *RenderRequest) string {
	head := strings.ToLower(req.HTML[:min(len(req.HTML), 512)])
	if strings.Contains(head, "<!doctype") || strings.Contains(head, "<html") {
		return req.HTML
	}
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8">`)
	if req.Title != "" {
		fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(req.Title))
	}
	b.WriteString("</head><body>")
	b.WriteString(req.HTML)
	b.WriteString("</body></html>")
	return b.String()
}

// countPages counts page objects; "/Type /Page" also matches the "/Type /Pages" tree node
func countPages(pdf []byte) int {
	n := bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
	return max(n, 1)
}

var _ PDFRenderer = (*ChromedpRenderer)(nil)
