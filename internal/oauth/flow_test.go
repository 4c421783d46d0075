package oauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const testCallbackBase = "http://localhost:8912/callback"

type fakeBrowser struct {
	mu         sync.Mutex
	newTabErr  error
	newTabs    int
	closedTabs []string
}

func (b *fakeBrowser) NewTab(url string) (string, context.Context, context.CancelFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.newTabErr != nil {
		return "", nil, nil, b.newTabErr
	}
	b.newTabs++
	ctx, cancel := context.WithCancel(context.Background())
	return "tab-1", ctx, cancel, nil
}

func (b *fakeBrowser) CloseTab(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closedTabs = append(b.closedTabs, id)
	return nil
}

func (b *fakeBrowser) closed(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.closedTabs {
		if c == id {
			return true
		}
	}
	return false
}

type flowHarness struct {
	flow     *Flow
	browser  *fakeBrowser
	attached chan struct{} // closed once the listener seam is wired

	mu          sync.Mutex
	onNavigated func(string)
	onClosed    func()
	progress    []string
}

func newHarness(t *testing.T, timeout time.Duration) *flowHarness {
	t.Helper()
	h := &flowHarness{
		browser:  &fakeBrowser{},
		attached: make(chan struct{}),
	}
	h.flow = NewFlow(h.browser, FlowConfig{
		AuthURL:     "https://idp.example/auth",
		CallbackURL: testCallbackBase,
		Timeout:     timeout,
		OnProgress: func(msg string) {
			h.mu.Lock()
			h.progress = append(h.progress, msg)
			h.mu.Unlock()
		},
	})
	h.flow.listen = func(tabCtx context.Context, onNavigated func(string), onClosed func()) {
		h.mu.Lock()
		h.onNavigated = onNavigated
		h.onClosed = onClosed
		h.mu.Unlock()
		go func() {
			<-tabCtx.Done()
			onClosed()
		}()
		close(h.attached)
	}
	h.flow.navigate = func(context.Context, string) error { return nil }
	h.flow.location = func(context.Context) (string, error) { return "about:blank", nil }
	return h
}

func (h *flowHarness) start(t *testing.T) (chan *CallbackResult, chan error) {
	t.Helper()
	resCh := make(chan *CallbackResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := h.flow.Start(context.Background())
		resCh <- res
		errCh <- err
	}()
	return resCh, errCh
}

func (h *flowHarness) navigated(t *testing.T, url string) {
	t.Helper()
	select {
	case <-h.attached:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never attached")
	}
	h.mu.Lock()
	fn := h.onNavigated
	h.mu.Unlock()
	fn(url)
}

func (h *flowHarness) progressLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.progress...)
}

func flowErrType(t *testing.T, err error) ErrorType {
	t.Helper()
	var fe *FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FlowError, got %T: %v", err, err)
	}
	return fe.Type
}

func TestFlow_Success(t *testing.T) {
	h := newHarness(t, time.Minute)
	resCh, errCh := h.start(t)

	h.navigated(t, "https://idp.example/login") // intermediate page, ignored
	h.navigated(t, testCallbackBase+"?code=abc123&state=xyz")

	res, err := <-resCh, <-errCh
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != "abc123" || res.State != "xyz" {
		t.Errorf("got code=%q state=%q", res.Code, res.State)
	}
	if h.flow.State() != StateSucceeded {
		t.Errorf("state = %s", h.flow.State())
	}
	if !h.browser.closed("tab-1") {
		t.Error("tab should be closed after success")
	}

	want := []string{
		"opening authorization page",
		"waiting for user authorization",
		"callback detected, extracting code",
	}
	got := h.progressLog()
	if len(got) != len(want) {
		t.Fatalf("progress = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFlow_ErrorParamInCallback(t *testing.T) {
	h := newHarness(t, time.Minute)
	_, errCh := h.start(t)

	h.navigated(t, testCallbackBase+"?error=access_denied&code=abc")

	err := <-errCh
	if typ := flowErrType(t, err); typ != ErrCodeExtraction {
		t.Errorf("errorType = %s, want CODE_EXTRACTION_FAILED", typ)
	}
	if !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("error %q should carry the IdP error", err)
	}
}

func TestFlow_ClosedByUser(t *testing.T) {
	h := newHarness(t, time.Minute)
	_, errCh := h.start(t)

	select {
	case <-h.attached:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never attached")
	}
	h.mu.Lock()
	h.onClosed()
	h.mu.Unlock()

	err := <-errCh
	if typ := flowErrType(t, err); typ != ErrBrowserClosed {
		t.Errorf("errorType = %s, want BROWSER_CLOSED", typ)
	}
	if h.flow.State() != StateClosedByUser {
		t.Errorf("state = %s", h.flow.State())
	}
}

func TestFlow_CancelMidFlight(t *testing.T) {
	h := newHarness(t, time.Minute)
	_, errCh := h.start(t)

	select {
	case <-h.attached:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never attached")
	}
	h.flow.Cancel()

	err := <-errCh
	if typ := flowErrType(t, err); typ != ErrCancelled {
		t.Errorf("errorType = %s, want USER_CANCELLED", typ)
	}
	if h.flow.State() != StateCancelled {
		t.Errorf("state = %s", h.flow.State())
	}

	// idempotent afterwards
	h.flow.Cancel()
}

func TestFlow_Timeout(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	_, errCh := h.start(t)

	err := <-errCh
	if typ := flowErrType(t, err); typ != ErrTimeout {
		t.Errorf("errorType = %s, want OAUTH_TIMEOUT", typ)
	}
	if h.flow.State() != StateTimedOut {
		t.Errorf("state = %s", h.flow.State())
	}
	if !h.browser.closed("tab-1") {
		t.Error("tab should be closed after timeout")
	}
}

func TestFlow_CancelBeforeStart(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.flow.Cancel()

	_, err := h.flow.Start(context.Background())
	if typ := flowErrType(t, err); typ != ErrCancelled {
		t.Errorf("errorType = %s, want USER_CANCELLED", typ)
	}
	if !strings.Contains(err.Error(), "already cancelled") {
		t.Errorf("error = %q", err)
	}
	if h.browser.newTabs != 0 {
		t.Error("cancelled flow must not open a tab")
	}
}

func TestFlow_FastRedirectBeatsListener(t *testing.T) {
	h := newHarness(t, time.Minute)
	// the tab already sits on the callback before the listener attached
	h.flow.location = func(context.Context) (string, error) {
		return testCallbackBase + "?code=quick", nil
	}
	resCh, errCh := h.start(t)

	res, err := <-resCh, <-errCh
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != "quick" {
		t.Errorf("code = %q", res.Code)
	}
}

func TestFlow_TabOpenFails(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.browser.newTabErr = errors.New("no targets available")

	_, err := h.flow.Start(context.Background())
	if typ := flowErrType(t, err); typ != ErrLaunchFailed {
		t.Errorf("errorType = %s, want BROWSER_LAUNCH_FAILED", typ)
	}
	if h.flow.State() != StateLaunchFailed {
		t.Errorf("state = %s", h.flow.State())
	}
}

func TestFlow_NavigateFails(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.flow.navigate = func(context.Context, string) error {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}

	_, err := h.flow.Start(context.Background())
	if typ := flowErrType(t, err); typ != ErrScript {
		t.Errorf("errorType = %s, want SCRIPT_ERROR", typ)
	}
	if !h.browser.closed("tab-1") {
		t.Error("tab should be closed after a failed navigation")
	}
}

func TestFlow_StateNeverSuccessAfterCancel(t *testing.T) {
	h := newHarness(t, time.Minute)
	_, errCh := h.start(t)

	select {
	case <-h.attached:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never attached")
	}
	h.flow.Cancel()
	// a late callback must not flip the outcome
	h.mu.Lock()
	fn := h.onNavigated
	h.mu.Unlock()
	fn(testCallbackBase + "?code=late")

	err := <-errCh
	if err == nil {
		t.Fatal("cancelled flow must never settle as success")
	}
}
