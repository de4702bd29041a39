package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/browser"
	"github.com/gotrs-io/mailflow/internal/config"
)

// Options controls how browsers are launched and what artifacts each page
// leaves behind.
type Options struct {
	Engine         string
	Channel        string
	Headless       bool
	SlowMo         time.Duration
	ViewportWidth  int
	ViewportHeight int
	// StorageState seeds every context with saved cookies so runs can skip
	// the sign-in form.
	StorageState  string
	ArtifactsDir  string
	Screenshots   bool
	Videos        bool
	Install       bool
	ActionTimeout time.Duration
}

// OptionsFromConfig maps the browser section of the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	b := cfg.Browser
	return Options{
		Engine:         b.Engine,
		Channel:        b.Channel,
		Headless:       b.Headless,
		SlowMo:         b.SlowMo,
		ViewportWidth:  b.Viewport.Width,
		ViewportHeight: b.Viewport.Height,
		StorageState:   b.StorageState,
		ArtifactsDir:   b.ArtifactsDir,
		Screenshots:    b.Screenshots,
		Videos:         b.Videos,
		Install:        b.Install,
		ActionTimeout:  cfg.Timeouts.Action,
	}
}

// Launcher owns one playwright driver and one browser. Every page gets a
// fresh context so scenarios never share cookies.
type Launcher struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
}

var _ browser.Opener = (*Launcher)(nil)

// Launch starts the playwright driver and the configured browser. The
// driver and browsers are installed first when opts.Install is set, unless
// PLAYWRIGHT_PREINSTALLED=1 says the image already carries them.
func Launch(opts Options, logger *zap.Logger) (*Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Engine == "" {
		opts.Engine = "chromium"
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 30 * time.Second
	}

	if opts.Install && os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		logger.Info("installing playwright browsers", zap.String("engine", opts.Engine))
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{opts.Engine}}); err != nil {
			return nil, fmt.Errorf("could not install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	bt, err := browserType(pw, opts.Engine)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	if opts.Channel != "" {
		launch.Channel = playwright.String(opts.Channel)
	}
	b, err := bt.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch %s: %w", opts.Engine, err)
	}

	logger.Info("browser launched",
		zap.String("engine", opts.Engine),
		zap.String("version", b.Version()),
		zap.Bool("headless", opts.Headless))
	return &Launcher{opts: opts, pw: pw, browser: b, logger: logger}, nil
}

func browserType(pw *playwright.Playwright, engine string) (playwright.BrowserType, error) {
	switch engine {
	case "chromium":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}
}

// Open creates a page in a fresh context. Callers must Close it.
func (l *Launcher) Open(ctx context.Context, name string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := playwright.BrowserNewContextOptions{}
	if l.opts.ViewportWidth > 0 && l.opts.ViewportHeight > 0 {
		opts.Viewport = &playwright.Size{Width: l.opts.ViewportWidth, Height: l.opts.ViewportHeight}
	}
	if l.opts.StorageState != "" {
		if _, err := os.Stat(l.opts.StorageState); err == nil {
			opts.StorageStatePath = playwright.String(l.opts.StorageState)
		} else {
			l.logger.Warn("storage state not found, starting signed out",
				zap.String("path", l.opts.StorageState))
		}
	}
	if l.opts.Videos {
		opts.RecordVideo = &playwright.RecordVideo{Dir: filepath.Join(l.opts.ArtifactsDir, "videos")}
	}

	bctx, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	page.SetDefaultTimeout(float64(l.opts.ActionTimeout.Milliseconds()))

	return &Page{
		page:          page,
		context:       bctx,
		name:          name,
		actionTimeout: l.opts.ActionTimeout,
	}, nil
}

// NewPage implements browser.Opener.
func (l *Launcher) NewPage(ctx context.Context, name string) (browser.Page, func(failed bool) error, error) {
	p, err := l.Open(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return p, func(failed bool) error { return l.Close(p, failed) }, nil
}

// Close releases a page and its context. A screenshot is taken first when
// the page failed and screenshots are enabled.
func (l *Launcher) Close(p *Page, failed bool) error {
	log := l.logger.With(zap.String("page", p.name))
	if failed && l.opts.Screenshots {
		path := artifactPath(l.opts.ArtifactsDir, "screenshots", p.name, time.Now(), ".png")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Warn("failed to create screenshot dir", zap.Error(err))
		} else if _, err := p.page.Screenshot(playwright.PageScreenshotOptions{
			Path:     playwright.String(path),
			FullPage: playwright.Bool(true),
		}); err != nil {
			log.Warn("failed to take screenshot", zap.Error(err))
		} else {
			log.Info("screenshot saved", zap.String("path", path))
		}
	}

	var video string
	if v := p.page.Video(); v != nil {
		video, _ = v.Path()
	}

	var errs []error
	if err := p.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	// Videos are only flushed to disk once the context closes.
	if err := p.context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if video != "" {
		log.Info("video saved", zap.String("path", video), zap.Bool("failed", failed))
	}
	return errors.Join(errs...)
}

// Shutdown closes the browser and stops the driver.
func (l *Launcher) Shutdown() error {
	var errs []error
	if err := l.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := l.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func artifactPath(dir, kind, name string, at time.Time, ext string) string {
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-")
	if name == "" {
		name = "page"
	}
	return filepath.Join(dir, kind, fmt.Sprintf("%s_%s%s", name, at.Format("20060102-150405"), ext))
}
