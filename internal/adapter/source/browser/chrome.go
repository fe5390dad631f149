package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

const scrollToBottomJS = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`

// Options configures Chrome sessions.
type Options struct {
	ExecPath     string // empty lets chromedp locate the binary
	UserAgent    string
	CardSelector string
	WaitTimeout  time.Duration
	LazyLoadWait time.Duration
}

type chromeSession struct {
	opts        Options
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *slog.Logger
}

// NewChromeFactory returns a SessionFactory that launches a headless Chrome per session.
// Images are disabled and the sandbox is off so it runs inside containers.
func NewChromeFactory(opts Options, logger *slog.Logger) SessionFactory {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 15 * time.Second
	}
	if opts.CardSelector == "" {
		opts.CardSelector = ".memo-card"
	}
	logger = logger.With("component", "chrome_session")

	return func(ctx context.Context) (Session, error) {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.DisableGPU,
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
			chromedp.WindowSize(1920, 1080),
		)
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
		tabCtx, cancelTab := chromedp.NewContext(allocCtx)

		// Running no actions starts the browser, surfacing a missing binary here.
		if err := chromedp.Run(tabCtx); err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		logger.Debug("Browser session started")
		return &chromeSession{
			opts:        opts,
			ctx:         tabCtx,
			cancelTab:   cancelTab,
			cancelAlloc: cancelAlloc,
			logger:      logger,
		}, nil
	}
}

func (s *chromeSession) Render(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	waitCtx, cancel := context.WithTimeout(s.ctx, s.opts.WaitTimeout)
	defer cancel()
	err := chromedp.Run(waitCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(s.opts.CardSelector, chromedp.ByQuery),
	)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", ErrNoContent
	}
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", url, err)
	}

	var (
		height int
		html   string
	)
	err = chromedp.Run(s.ctx,
		chromedp.Evaluate(scrollToBottomJS, &height),
		chromedp.Sleep(s.opts.LazyLoadWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to read rendered page %s: %w", url, err)
	}
	s.logger.Debug("Rendered page", "url", url, "scroll_height", height, "bytes", len(html))
	return html, nil
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	return err
}
