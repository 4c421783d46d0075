package protocol

import (
	"encoding/json"
	"io"
	"sync"
)

// Request is one decoded line of host input. Unknown or missing actions are
// valid inputs that produce error responses, never crashes.
type Request struct {
	Action      string `json:"action"`
	AuthURL     string `json:"authUrl,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

const (
	ActionLogin    = "login"
	ActionCancel   = "cancel"
	ActionCheck    = "check"
	ActionReady    = "ready"
	ActionProgress = "progress"
	ActionError    = "error"
	ActionUnknown  = "unknown"
)

// Response is one line of output. Data keys follow the wire contract:
// message/code/state/error/errorType for login, available/browserPath/
// browserSource/error for check.
type Response struct {
	Success bool           `json:"success"`
	Action  string         `json:"action"`
	Data    map[string]any `json:"data,omitempty"`
}

// Writer serializes responses onto stdout. The read loop and the async
// login goroutine both emit, so every write goes through the mutex.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Send(r Response) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(r)
}

func (w *Writer) sendOK(action string, data map[string]any) {
	w.Send(Response{Success: true, Action: action, Data: data})
}

func (w *Writer) sendErr(action string, data map[string]any) {
	w.Send(Response{Success: false, Action: action, Data: data})
}
