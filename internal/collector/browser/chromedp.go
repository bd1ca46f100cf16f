package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Launch modes.
const (
	ModeLocal     = "local"
	ModeSandboxed = "sandboxed"
)

// DefaultUserAgent is a current desktop Chrome identity.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ChromeConfig controls how Chrome is started. Extraction is identical in
// every mode.
type ChromeConfig struct {
	Mode         string `mapstructure:"mode"`
	ExecPath     string `mapstructure:"exec_path"`
	UserAgent    string `mapstructure:"user_agent"`
	Headful      bool   `mapstructure:"headful"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`
}

// ChromeLauncher starts one Chrome process per run.
type ChromeLauncher struct {
	cfg ChromeConfig
}

// NewChromeLauncher validates cfg and returns a launcher.
func NewChromeLauncher(cfg ChromeConfig) (*ChromeLauncher, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeLocal
	case ModeLocal, ModeSandboxed:
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1366
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 900
	}
	return &ChromeLauncher{cfg: cfg}, nil
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(l.cfg.UserAgent),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "en-US"),
	)
	if l.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if l.cfg.Mode == ModeSandboxed {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("single-process", true),
			chromedp.Flag("no-zygote", true),
		)
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Launch starts Chrome and opens a single tab. The returned page lives until
// Close or until ctx is done.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}
	ua := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetUserAgentOverride(l.cfg.UserAgent).WithAcceptLanguage("en-US,en").Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
	if err := chromedp.Run(tabCtx, ua); err != nil {
		cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel}, nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := p.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, 45*time.Second, chromedp.Navigate(url))
}

func (p *chromePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Search(ctx context.Context, selector, query string) error {
	return p.run(ctx, 10*time.Second,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, query+kb.Enter, chromedp.ByQuery),
	)
}

func (p *chromePage) Cards(ctx context.Context, selector string) ([]string, error) {
	var out []string
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => e.outerHTML)`, jsString(selector))
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(script, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *chromePage) OpenCard(ctx context.Context, selector string, index int, panel string, timeout time.Duration) (Detail, error) {
	var clicked bool
	script := fmt.Sprintf(`(() => {
  const el = document.querySelectorAll(%s)[%d];
  if (!el) return false;
  el.scrollIntoView({block: "center"});
  (el.matches("a") ? el : (el.querySelector("a[href]") || el)).click();
  return true;
})()`, jsString(selector), index)
	if err := p.run(ctx, timeout, chromedp.Evaluate(script, &clicked)); err != nil {
		return Detail{}, err
	}
	if !clicked {
		return Detail{}, fmt.Errorf("card %d not found", index)
	}

	var d Detail
	read := fmt.Sprintf(`(() => {
  const all = document.querySelectorAll(%s);
  return all.length ? all[all.length - 1].outerHTML : "";
})()`, jsString(panel))
	err := p.run(ctx, timeout,
		chromedp.WaitVisible(panel, chromedp.ByQuery),
		chromedp.Sleep(750*time.Millisecond),
		chromedp.Evaluate(read, &d.HTML),
		chromedp.Location(&d.URL),
	)
	if err != nil {
		return Detail{}, err
	}
	return d, nil
}

func (p *chromePage) ScrollFeed(ctx context.Context, feed string) error {
	var found bool
	script := fmt.Sprintf(`(() => {
  const f = document.querySelector(%s);
  if (!f) return false;
  f.scrollTop = f.scrollHeight;
  return true;
})()`, jsString(feed))
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(script, &found)); err != nil {
		return err
	}
	if !found {
		return errors.New("results feed not found")
	}
	return nil
}

func (p *chromePage) KeyboardScroll(ctx context.Context, feed string) error {
	var focused bool
	script := fmt.Sprintf(`(() => {
  const f = document.querySelector(%s);
  if (!f) return false;
  f.tabIndex = -1;
  f.focus();
  return true;
})()`, jsString(feed))
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(script, &focused)); err != nil {
		return err
	}
	if !focused {
		return errors.New("results feed not found")
	}
	return p.run(ctx, 5*time.Second,
		chromedp.KeyEvent(kb.PageDown),
		chromedp.KeyEvent(kb.PageDown),
		chromedp.KeyEvent(kb.End),
	)
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, 10*time.Second, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s) //nolint:errcheck
	return string(b)
}
