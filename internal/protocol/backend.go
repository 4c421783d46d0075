package protocol

import (
	"context"

	"github.com/pinchtab/authbridge/internal/browser"
	"github.com/pinchtab/authbridge/internal/config"
	"github.com/pinchtab/authbridge/internal/oauth"
)

// Backend is the dispatcher's seam to the browser and flow layers. Tests
// plug in fakes; production wires chromedp through chromeBackend.
type Backend interface {
	// CheckBinary probes browser availability without launching anything.
	CheckBinary() (*browser.Binary, error)
	// OpenSession launches a browser context and prepares a login flow.
	OpenSession(ctx context.Context, authURL, callbackURL string, progress oauth.ProgressFunc) (Session, error)
}

// Session is one login attempt's resources: the flow plus the browser
// context backing it. Close is unconditional cleanup and must be safe after
// any outcome.
type Session interface {
	Run(ctx context.Context) (*oauth.CallbackResult, error)
	Cancel()
	Close()
}

type chromeBackend struct {
	cfg     *config.RuntimeConfig
	factory *browser.Factory
}

func NewBackend(cfg *config.RuntimeConfig) Backend {
	return &chromeBackend{cfg: cfg, factory: browser.NewFactory(cfg)}
}

func (b *chromeBackend) CheckBinary() (*browser.Binary, error) {
	return b.factory.CheckBinary()
}

func (b *chromeBackend) OpenSession(ctx context.Context, authURL, callbackURL string, progress oauth.ProgressFunc) (Session, error) {
	bctx, err := b.factory.CreateContext(ctx, nil)
	if err != nil {
		return nil, err
	}
	flow := oauth.NewFlow(bctx, oauth.FlowConfig{
		AuthURL:     authURL,
		CallbackURL: callbackURL,
		Timeout:     b.cfg.LoginTimeout,
		OnProgress:  progress,
	})
	return &chromeSession{browser: bctx, flow: flow}, nil
}

type chromeSession struct {
	browser *browser.Context
	flow    *oauth.Flow
}

func (s *chromeSession) Run(ctx context.Context) (*oauth.CallbackResult, error) {
	return s.flow.Start(ctx)
}

func (s *chromeSession) Cancel() {
	s.flow.Cancel()
}

func (s *chromeSession) Close() {
	s.browser.Close()
}
