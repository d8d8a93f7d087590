package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"platewatch/internal/components/telemetry"

	"github.com/chromedp/chromedp"
)

const DefaultOperationTimeout = 60 * time.Second

type ChromeOptions struct {
	Headless bool
	// ExecPath overrides the browser binary, chromedp searches the usual
	// locations when it is empty.
	ExecPath     string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// OperationTimeout bounds every single page operation.
	OperationTimeout time.Duration
}

func DefaultChromeOptions() ChromeOptions {
	return ChromeOptions{
		Headless:         true,
		WindowWidth:      1366,
		WindowHeight:     900,
		OperationTimeout: DefaultOperationTimeout,
	}
}

func BuildAllocatorOptions(opts ChromeOptions) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-software-rasterizer", true),
	)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	return out
}

// ChromeLauncher launches headless chrome through chromedp.
type ChromeLauncher struct {
	opts ChromeOptions
	tel  telemetry.API
}

func NewChromeLauncher(opts ChromeOptions, tel telemetry.API) ChromeLauncher {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	return ChromeLauncher{opts: opts, tel: telemetry.NewScopedAPI("chrome", tel)}
}

func (l ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	// the browser outlives the run that launched it, so it is not derived
	// from ctx.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), BuildAllocatorOptions(l.opts)...)
	browserCtx, browserCancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, v ...any) {
			l.tel.ReportDebug(fmt.Sprintf(format, v...))
		}),
		chromedp.WithErrorf(func(format string, v ...any) {
			l.tel.ReportWarning("cdp", fmt.Sprintf(format, v...))
		}),
	)

	err := runDetached(ctx, browserCtx)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		timeout:     l.opts.OperationTimeout,
	}, nil
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func (b *chromeBrowser) Connected() bool {
	return b.ctx.Err() == nil
}

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	// the first Run on a tab context creates the target, a deadline on it
	// would close the tab when it expires.
	err := runDetached(ctx, tabCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new tab: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel, timeout: b.timeout}, nil
}

// runDetached runs an empty action list on target without deriving from ctx,
// it gives up waiting (but does not interrupt) when ctx is done.
func runDetached(ctx, target context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(target)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err == context.Canceled {
		return nil
	}
	return err
}

type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// run executes actions on the tab bounded by both the operation timeout and
// the caller's ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

const optionsScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) return [];
	return Array.from(el.querySelectorAll('option')).map(o => ({
		value: o.value,
		text: (o.textContent || '').trim(),
	}));
})()`

func (p *chromePage) Options(ctx context.Context, selector string) ([]Option, error) {
	var out []Option
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(optionsScript, jsString(selector)), &out))
	return out, err
}

const selectScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.value = %s;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`

func (p *chromePage) Select(ctx context.Context, selector, value string) error {
	var found bool
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(selectScript, jsString(selector), jsString(value)), &found))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("select %s: no element matches", selector)
	}
	return nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromePage) Fill(ctx context.Context, selector, text string) error {
	return p.run(ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

const attributeScript = `(() => {
	const el = document.querySelector(%s);
	if (!el || !el.hasAttribute(%s)) return { found: false, value: '' };
	return { found: true, value: el.getAttribute(%s) };
})()`

func (p *chromePage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var out struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	script := fmt.Sprintf(attributeScript, jsString(selector), jsString(name), jsString(name))
	err := p.run(ctx, chromedp.Evaluate(script, &out))
	return out.Value, out.Found, err
}

func (p *chromePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible))
	return buf, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if err == context.Canceled {
		return nil
	}
	return err
}
