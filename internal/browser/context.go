package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/pinchtab/authbridge/internal/assets"
	"github.com/pinchtab/authbridge/internal/config"
	"github.com/pinchtab/authbridge/internal/uameta"
)

// Factory builds persistent, anti-detection-configured browser contexts.
type Factory struct {
	cfg     *config.RuntimeConfig
	locator *Locator
}

func NewFactory(cfg *config.RuntimeConfig) *Factory {
	return &Factory{
		cfg:     cfg,
		locator: NewLocator(cfg.ChromeBinary, cfg.StateDir),
	}
}

// CheckBinary probes binary availability without launching anything.
func (f *Factory) CheckBinary() (*Binary, error) {
	return f.locator.Locate()
}

// Context is one live browser: the exec allocator, the browser connection,
// and the launch config it was built from. Owned by a single login session.
type Context struct {
	Config LaunchConfig
	Binary *Binary

	cfg           *config.RuntimeConfig
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	stealthScript string
}

// CreateContext validates the launch config, resolves a binary, and launches
// a persistent browser context bound to the profile directory. The profile
// dir is created or reused on disk; login state survives across runs.
func (f *Factory) CreateContext(parent context.Context, overrides *LaunchConfig) (*Context, error) {
	lc := BuildConfig(f.cfg, overrides)
	if vr := ValidateConfig(lc); !vr.Valid {
		return nil, fmt.Errorf("invalid launch config: %s", strings.Join(vr.Errors, "; "))
	}

	var (
		bin         *Binary
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)

	if f.cfg.CdpURL != "" {
		slog.Info("attaching to running browser", "url", f.cfg.CdpURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, f.cfg.CdpURL)
	} else {
		var err error
		bin, err = f.locator.Locate()
		if err != nil {
			return nil, err
		}

		if err := PrepareProfileDir(lc.UserDataDir); err != nil {
			return nil, fmt.Errorf("prepare profile dir %s: %w", lc.UserDataDir, err)
		}

		slog.Info("launching browser", "binary", bin.Path, "source", bin.Source,
			"profile", lc.UserDataDir, "headless", f.cfg.Headless)
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, allocatorOpts(lc, bin, f.cfg)...)
	}

	seed := rand.Intn(1000000000)
	script := fmt.Sprintf("var __authbridge_seed = %d;\n", seed) + assets.StealthScript

	browserCtx, browserCancel, err := startBrowser(allocCtx, script, f.cfg.ChromeStartTimeout)
	if err != nil {
		allocCancel()
		return nil, fmt.Errorf("browser failed to start: %w (try deleting %s)", err, lc.UserDataDir)
	}

	c := &Context{
		Config:        lc,
		Binary:        bin,
		cfg:           f.cfg,
		browserCtx:    browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		stealthScript: script,
	}
	c.grantPermissions()
	return c, nil
}

func allocatorOpts(lc LaunchConfig, bin *Binary, cfg *config.RuntimeConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(bin.Path),
		chromedp.UserDataDir(lc.UserDataDir),
		chromedp.WindowSize(lc.Viewport.Width, lc.Viewport.Height),
	}

	for _, f := range lc.Args {
		if k, v, ok := strings.Cut(f, "="); ok {
			opts = append(opts, chromedp.Flag(strings.TrimLeft(k, "-"), v))
		} else {
			opts = append(opts, chromedp.Flag(strings.TrimLeft(f, "-"), true))
		}
	}

	if cfg.ChromeExtraFlags != "" {
		for _, f := range strings.Fields(cfg.ChromeExtraFlags) {
			if k, v, ok := strings.Cut(f, "="); ok {
				opts = append(opts, chromedp.Flag(strings.TrimLeft(k, "-"), v))
			} else {
				opts = append(opts, chromedp.Flag(strings.TrimLeft(f, "-"), true))
			}
		}
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	return opts
}

// startBrowser connects the first target and installs the stealth seed
// script, bounded by startTimeout so a wedged profile cannot hang the
// whole login request.
func startBrowser(allocCtx context.Context, seededScript string, startTimeout time.Duration) (context.Context, context.CancelFunc, error) {
	bCtx, bCancel := chromedp.NewContext(allocCtx)

	startCtx, startDone := context.WithTimeout(context.Background(), startTimeout)
	defer startDone()

	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(bCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(seededScript).Do(ctx)
				return err
			}),
		)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			bCancel()
			return nil, nil, err
		}
		return bCtx, bCancel, nil
	case <-startCtx.Done():
		bCancel()
		return nil, nil, fmt.Errorf("timed out after %s", startTimeout)
	}
}

func (c *Context) grantPermissions() {
	err := chromedp.Run(c.browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{
				cdpbrowser.PermissionTypeClipboardReadWrite,
				cdpbrowser.PermissionTypeClipboardSanitizedWrite,
				cdpbrowser.PermissionTypeNotifications,
			}).Do(ctx)
		}),
	)
	if err != nil {
		slog.Warn("grant permissions failed", "err", err)
	}
}

// NewTab opens a fresh tab, applies the per-tab environment realism
// overrides, and returns its target id plus a context bound to it.
func (c *Context) NewTab(url string) (string, context.Context, context.CancelFunc, error) {
	if c.browserCtx == nil {
		return "", nil, nil, fmt.Errorf("no browser context available")
	}

	navURL := "about:blank"
	if url != "" {
		navURL = url
	}

	var targetID target.ID
	createCtx, createCancel := context.WithTimeout(c.browserCtx, 10*time.Second)
	err := chromedp.Run(createCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			targetID, err = target.CreateTarget(navURL).Do(ctx)
			return err
		}),
	)
	createCancel()
	if err != nil {
		return "", nil, nil, fmt.Errorf("create target: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx,
		chromedp.WithTargetID(targetID),
	)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return "", nil, nil, fmt.Errorf("attach to tab: %w", err)
	}

	c.setupTab(tabCtx)

	return string(targetID), tabCtx, tabCancel, nil
}

// setupTab applies the realism overrides that reduce automated-browser
// detection: consistent UA + client hints, locale and timezone, an
// Accept-Language header, and a sane device pixel ratio in headless mode.
func (c *Context) setupTab(tabCtx context.Context) {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.Enable().Do(ctx)
		}),
	}

	if ua := uameta.Build(c.Config.UserAgent, c.cfg.ChromeVersion, c.cfg.Locale+","+baseLang(c.cfg.Locale)); ua != nil {
		actions = append(actions, ua)
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": c.cfg.Locale + "," + baseLang(c.cfg.Locale) + ";q=0.9",
		}).Do(ctx)
	}))
	if c.cfg.Timezone != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetTimezoneOverride(c.cfg.Timezone).Do(ctx)
		}))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetLocaleOverride().WithLocale(c.cfg.Locale).Do(ctx)
	}))
	if c.cfg.Headless {
		// Headless reports DPR 0 without an override; the window manager
		// owns geometry in headful mode.
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDeviceMetricsOverride(
				int64(c.Config.Viewport.Width), int64(c.Config.Viewport.Height), 1.0, false,
			).Do(ctx)
		}))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		slog.Warn("tab realism setup failed", "err", err)
	}
}

func baseLang(locale string) string {
	if i := strings.Index(locale, "-"); i > 0 {
		return locale[:i]
	}
	return locale
}

// CloseTab closes a tab by target id via the browser session, so it works
// even after the tab's own context is gone.
func (c *Context) CloseTab(tabID string) error {
	if tabID == "" || c.browserCtx == nil {
		return nil
	}
	closeCtx, closeCancel := context.WithTimeout(c.browserCtx, 5*time.Second)
	defer closeCancel()

	return target.CloseTarget(target.ID(tabID)).Do(
		cdp.WithExecutor(closeCtx, chromedp.FromContext(closeCtx).Browser))
}

// Close tears the whole browser down. MarkCleanExit keeps the next launch
// from seeing a crashed profile.
func (c *Context) Close() {
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	if c.cfg.CdpURL == "" {
		MarkCleanExit(c.Config.UserDataDir)
	}
}
