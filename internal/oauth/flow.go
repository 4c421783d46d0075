package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// State tracks one login attempt through its lifecycle. Every terminal
// state goes through the same tab-teardown path.
type State string

const (
	StateIdle             State = "IDLE"
	StateLaunching        State = "LAUNCHING"
	StateNavigating       State = "NAVIGATING"
	StateAwaitingCallback State = "AWAITING_CALLBACK"
	StateSucceeded        State = "SUCCEEDED"
	StateTimedOut         State = "TIMED_OUT"
	StateCancelled        State = "CANCELLED"
	StateClosedByUser     State = "CLOSED_BY_USER"
	StateLaunchFailed     State = "LAUNCH_FAILED"
	StateFailed           State = "FAILED"
)

type ProgressFunc func(message string)

// Browser is the slice of the browser context a flow needs: open one tab,
// close it again. The flow owns that tab exclusively for its lifetime.
type Browser interface {
	NewTab(url string) (string, context.Context, context.CancelFunc, error)
	CloseTab(tabID string) error
}

type FlowConfig struct {
	AuthURL     string
	CallbackURL string
	Timeout     time.Duration
	OnProgress  ProgressFunc
}

const DefaultTimeout = 300 * time.Second

// Flow drives a single authorization-code login attempt: open a tab,
// navigate to the IdP, then race callback detection against the tab being
// closed and against the timeout.
type Flow struct {
	ID      string
	browser Browser
	cfg     FlowConfig

	// seams for tests; production uses the chromedp implementations
	listen   func(tabCtx context.Context, onNavigated func(string), onClosed func())
	navigate func(tabCtx context.Context, url string) error
	location func(tabCtx context.Context) (string, error)

	mu        sync.Mutex
	state     State
	cancelled bool
	timer     *time.Timer
	tabID     string
	tabCancel context.CancelFunc
}

func NewFlow(b Browser, cfg FlowConfig) *Flow {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Flow{
		ID:       uuid.NewString(),
		browser:  b,
		cfg:      cfg,
		state:    StateIdle,
		listen:   chromedpListen,
		navigate: chromedpNavigate,
		location: chromedpLocation,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Flow) isCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *Flow) progress(msg string) {
	slog.Info("login progress", "attempt", f.ID, "msg", msg)
	if f.cfg.OnProgress != nil {
		f.cfg.OnProgress(msg)
	}
}

// Start runs the attempt to completion and returns either the parsed
// callback or a FlowError typed at the failure site. Calling Start on an
// already-cancelled flow opens nothing.
func (f *Flow) Start(ctx context.Context) (*CallbackResult, error) {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return nil, &FlowError{Type: ErrCancelled, Msg: "flow already cancelled"}
	}
	f.state = StateLaunching
	f.mu.Unlock()

	tabID, tabCtx, tabCancel, err := f.browser.NewTab("")
	if err != nil {
		f.setState(StateLaunchFailed)
		return nil, &FlowError{Type: ErrLaunchFailed, Msg: "failed to open login tab", Err: err}
	}

	f.mu.Lock()
	if f.cancelled {
		// Cancel raced the tab open; tear down what we just created.
		f.mu.Unlock()
		tabCancel()
		_ = f.browser.CloseTab(tabID)
		f.setState(StateCancelled)
		return nil, &FlowError{Type: ErrCancelled, Msg: "login cancelled by user"}
	}
	f.tabID = tabID
	f.tabCancel = tabCancel
	f.mu.Unlock()

	defer f.closeTab()

	f.progress("opening authorization page")

	callbackCh := make(chan string, 1)
	closedCh := make(chan struct{})
	var closeOnce sync.Once

	f.listen(tabCtx,
		func(u string) {
			if IsCallbackURL(u, f.cfg.CallbackURL) {
				select {
				case callbackCh <- u:
				default:
				}
			}
		},
		func() {
			closeOnce.Do(func() { close(closedCh) })
		},
	)

	f.setState(StateNavigating)
	if err := f.navigate(tabCtx, f.cfg.AuthURL); err != nil {
		f.setState(StateFailed)
		return nil, &FlowError{Type: ErrScript, Msg: "failed to open authorization page", Err: err}
	}

	f.progress("waiting for user authorization")
	f.setState(StateAwaitingCallback)

	// A fast IdP can redirect before the listener was attached; check where
	// the tab already is.
	if loc, err := f.location(tabCtx); err == nil && IsCallbackURL(loc, f.cfg.CallbackURL) {
		select {
		case callbackCh <- loc:
		default:
		}
	}

	timer := time.NewTimer(f.cfg.Timeout)
	f.mu.Lock()
	f.timer = timer
	f.mu.Unlock()
	defer timer.Stop()

	select {
	case raw := <-callbackCh:
		// A callback that raced an explicit cancel must not win: the host
		// was already told the login is being abandoned.
		if f.isCancelled() {
			f.setState(StateCancelled)
			return nil, &FlowError{Type: ErrCancelled, Msg: "login cancelled by user"}
		}
		f.progress("callback detected, extracting code")
		res := ParseCallbackURL(raw)
		if !res.Success {
			f.setState(StateFailed)
			return nil, &FlowError{Type: ErrCodeExtraction, Msg: res.Err}
		}
		f.setState(StateSucceeded)
		return &res, nil

	case <-closedCh:
		if f.isCancelled() {
			f.setState(StateCancelled)
			return nil, &FlowError{Type: ErrCancelled, Msg: "login cancelled by user"}
		}
		f.setState(StateClosedByUser)
		return nil, &FlowError{Type: ErrBrowserClosed, Msg: "browser window closed before login completed"}

	case <-timer.C:
		f.setState(StateTimedOut)
		return nil, &FlowError{Type: ErrTimeout, Msg: fmt.Sprintf("authorization not completed within %s", f.cfg.Timeout)}

	case <-ctx.Done():
		f.setState(StateCancelled)
		return nil, &FlowError{Type: ErrCancelled, Msg: "login cancelled", Err: ctx.Err()}
	}
}

// Cancel flags the flow, stops the pending timer, and closes the tab if one
// is open. Close errors are swallowed: the tab may already be gone. Safe to
// call at any point, any number of times.
func (f *Flow) Cancel() {
	f.mu.Lock()
	if f.cancelled {
		f.mu.Unlock()
		return
	}
	f.cancelled = true
	timer := f.timer
	tabID := f.tabID
	tabCancel := f.tabCancel
	f.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if tabCancel != nil {
		tabCancel()
	}
	if tabID != "" {
		_ = f.browser.CloseTab(tabID)
	}
}

func (f *Flow) closeTab() {
	f.mu.Lock()
	tabID := f.tabID
	tabCancel := f.tabCancel
	f.tabID = ""
	f.tabCancel = nil
	f.mu.Unlock()

	if tabCancel != nil {
		tabCancel()
	}
	if tabID != "" {
		_ = f.browser.CloseTab(tabID)
	}
}

// chromedpListen wires page navigation events and tab-death signals to the
// flow's race. Only top-level frame navigations count; iframes inside the
// IdP page must not be mistaken for the redirect.
func chromedpListen(tabCtx context.Context, onNavigated func(string), onClosed func()) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				onNavigated(e.Frame.URL)
			}
		case *page.EventNavigatedWithinDocument:
			onNavigated(e.URL)
		case *inspector.EventDetached:
			onClosed()
		}
	})
	go func() {
		<-tabCtx.Done()
		onClosed()
	}()
}

// chromedpNavigate issues a raw Page.navigate without waiting for load:
// IdPs redirect several times and the frame events drive the flow anyway.
func chromedpNavigate(tabCtx context.Context, url string) error {
	return chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, _, _, err := page.Navigate(url).Do(ctx)
			return err
		}),
	)
}

func chromedpLocation(tabCtx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(tabCtx, 2*time.Second)
	defer cancel()
	var loc string
	if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}
