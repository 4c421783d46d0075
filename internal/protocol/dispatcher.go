package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinchtab/authbridge/internal/oauth"
)

// Dispatcher reads one JSON request per stdin line and writes one JSON
// response (or progress event) per stdout line. It owns the single
// process-wide session: at most one browser context + flow at a time.
type Dispatcher struct {
	backend Backend
	out     *Writer

	mu     sync.Mutex
	active *activeLogin
	wg     sync.WaitGroup
}

// activeLogin is the one-slot session. The slot is claimed synchronously in
// the read loop, so a second login gets a busy error instead of silently
// overwriting the first.
type activeLogin struct {
	id string

	mu        sync.Mutex
	cancelled bool
	sess      Session
}

func NewDispatcher(backend Backend, out *Writer) *Dispatcher {
	return &Dispatcher{backend: backend, out: out}
}

// Run processes requests until the input stream closes (host disconnect),
// then cleans up and returns 0. A panic while handling a request is
// reported as an error response and makes Run return 1.
func (d *Dispatcher) Run(r io.Reader) int {
	d.out.sendOK(ActionReady, map[string]any{"message": "authbridge ready"})

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if fatal := d.handleLine(line); fatal {
			return 1
		}
	}

	slog.Info("input stream closed, shutting down")
	d.shutdown()
	return 0
}

func (d *Dispatcher) handleLine(line string) (fatal bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("unhandled fault", "err", rec)
			d.out.sendErr(ActionError, map[string]any{"error": fmt.Sprint(rec)})
			fatal = true
		}
	}()

	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		d.out.sendErr(ActionUnknown, map[string]any{"error": "invalid JSON"})
		return false
	}

	d.dispatch(req)
	return false
}

func (d *Dispatcher) dispatch(req Request) {
	switch req.Action {
	case ActionLogin:
		d.handleLogin(req)
	case ActionCancel:
		d.handleCancel()
	case ActionCheck:
		d.handleCheck()
	default:
		action := req.Action
		if action == "" {
			action = ActionUnknown
		}
		d.out.sendErr(action, map[string]any{"error": "unknown action"})
	}
}

func (d *Dispatcher) handleLogin(req Request) {
	if req.AuthURL == "" {
		d.out.sendErr(ActionLogin, map[string]any{
			"error": "authUrl is required", "errorType": string(oauth.ErrUnknown),
		})
		return
	}
	if req.CallbackURL == "" {
		d.out.sendErr(ActionLogin, map[string]any{
			"error": "callbackUrl is required", "errorType": string(oauth.ErrUnknown),
		})
		return
	}

	d.mu.Lock()
	if d.active != nil {
		d.mu.Unlock()
		d.out.sendErr(ActionLogin, map[string]any{
			"error": "another login is already in progress", "errorType": string(oauth.ErrUnknown),
		})
		return
	}
	al := &activeLogin{id: uuid.NewString()}
	d.active = al
	d.mu.Unlock()

	slog.Info("login accepted", "session", al.id, "authUrl", req.AuthURL)

	// The flow blocks for up to the full login timeout; run it off the read
	// loop so cancel requests stay serviceable.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("login fault", "session", al.id, "err", rec)
				d.out.sendErr(ActionLogin, map[string]any{
					"error": fmt.Sprint(rec), "errorType": string(oauth.ErrScript),
				})
				d.release(al)
			}
		}()
		d.runLogin(al, req)
	}()
}

func (d *Dispatcher) runLogin(al *activeLogin, req Request) {
	progress := func(msg string) {
		d.out.sendOK(ActionProgress, map[string]any{"message": msg})
	}

	sess, err := d.backend.OpenSession(context.Background(), req.AuthURL, req.CallbackURL, progress)
	if err != nil {
		slog.Error("browser launch failed", "session", al.id, "err", err)
		d.out.sendErr(ActionLogin, map[string]any{
			"error": err.Error(), "errorType": string(oauth.ErrLaunchFailed),
		})
		d.release(al)
		return
	}

	al.mu.Lock()
	if al.cancelled {
		// Cancel arrived while the browser was still launching.
		al.mu.Unlock()
		sess.Close()
		d.out.sendErr(ActionLogin, map[string]any{
			"error": "login cancelled by user", "errorType": string(oauth.ErrCancelled),
		})
		d.release(al)
		return
	}
	al.sess = sess
	al.mu.Unlock()

	res, err := sess.Run(context.Background())
	sess.Close()

	if err != nil {
		slog.Warn("login failed", "session", al.id, "err", err)
		d.out.sendErr(ActionLogin, map[string]any{
			"error": err.Error(), "errorType": string(oauth.Classify(err)),
		})
	} else {
		slog.Info("login succeeded", "session", al.id)
		data := map[string]any{"code": res.Code}
		if res.State != "" {
			data["state"] = res.State
		}
		d.out.sendOK(ActionLogin, data)
	}
	d.release(al)
}

func (d *Dispatcher) release(al *activeLogin) {
	d.mu.Lock()
	if d.active == al {
		d.active = nil
	}
	d.mu.Unlock()
}

// handleCancel is idempotent: with no active session it still succeeds. The
// in-flight login settles through its own path and reports its own failure.
func (d *Dispatcher) handleCancel() {
	d.mu.Lock()
	al := d.active
	d.mu.Unlock()

	if al == nil {
		d.out.sendOK(ActionCancel, map[string]any{"message": "no active login"})
		return
	}

	al.mu.Lock()
	al.cancelled = true
	sess := al.sess
	al.mu.Unlock()

	if sess != nil {
		sess.Cancel()
	}
	d.out.sendOK(ActionCancel, map[string]any{"message": "login cancelled"})
}

// handleCheck probes binary availability only; no browser is launched.
func (d *Dispatcher) handleCheck() {
	bin, err := d.backend.CheckBinary()
	if err != nil {
		d.out.sendErr(ActionCheck, map[string]any{
			"available": false, "error": err.Error(),
		})
		return
	}
	d.out.sendOK(ActionCheck, map[string]any{
		"available": true, "browserPath": bin.Path, "browserSource": bin.Source,
	})
}

// shutdown cancels any in-flight login and waits (bounded) for its goroutine
// to finish tearing the browser down.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	al := d.active
	d.mu.Unlock()

	if al != nil {
		al.mu.Lock()
		al.cancelled = true
		sess := al.sess
		al.mu.Unlock()
		if sess != nil {
			sess.Cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("shutdown timed out waiting for active login")
	}
}
