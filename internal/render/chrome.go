package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ChromeConverter prints HTML to PDF with a headless Chromium driven over the
// DevTools protocol. The browser is launched on first use and reused.
type ChromeConverter struct {
	bin    string
	logger *slog.Logger

	mu      sync.Mutex
	launch  *launcher.Launcher
	browser *rod.Browser
}

// NewChromeConverter returns a converter using the Chromium binary at bin, or
// the one rod locates (or downloads) when bin is empty.
func NewChromeConverter(bin string, logger *slog.Logger) *ChromeConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeConverter{bin: bin, logger: logger}
}

// Convert renders html in a fresh tab and prints it to PDF.
func (c *ChromeConverter) Convert(ctx context.Context, html []byte) ([]byte, error) {
	browser, err := c.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("loading html: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for page load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("printing pdf: %w", err)
	}
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading pdf stream: %w", err)
	}
	return data, nil
}

func (c *ChromeConverter) ensureBrowser() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return c.browser, nil
		}
		c.logger.Warn("chromium connection lost, relaunching")
		_ = c.closeLocked()
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	if c.bin != "" {
		l = l.Bin(c.bin)
	}
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching chromium: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to chromium: %w", err)
	}
	c.launch = l
	c.browser = browser
	c.logger.Info("chromium started", "control_url", url)
	return browser, nil
}

// Close shuts the browser down if it was started.
func (c *ChromeConverter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *ChromeConverter) closeLocked() error {
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.launch != nil {
		c.launch.Kill()
		c.launch = nil
	}
	return err
}
