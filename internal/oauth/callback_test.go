package oauth

import (
	"strings"
	"testing"
)

func TestParseCallbackURL_Success(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantCode  string
		wantState string
	}{
		{
			name:     "code only",
			url:      "http://localhost:8912/callback?code=abc123",
			wantCode: "abc123",
		},
		{
			name:      "code and state",
			url:       "http://localhost:8912/callback?code=abc123&state=xyz",
			wantCode:  "abc123",
			wantState: "xyz",
		},
		{
			name:      "percent-encoded values are decoded",
			url:       "https://localhost/callback?code=a%2Bb%2Fc&state=x%3Dy",
			wantCode:  "a+b/c",
			wantState: "x=y",
		},
		{
			name:     "https with port",
			url:      "https://127.0.0.1:9000/callback?code=tok",
			wantCode: "tok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseCallbackURL(tt.url)
			if !res.Success {
				t.Fatalf("expected success, got error %q", res.Err)
			}
			if res.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", res.Code, tt.wantCode)
			}
			if res.State != tt.wantState {
				t.Errorf("state = %q, want %q", res.State, tt.wantState)
			}
		})
	}
}

func TestParseCallbackURL_ErrorParamWinsOverCode(t *testing.T) {
	res := ParseCallbackURL("http://localhost/callback?code=abc&error=access_denied&error_description=user%20said%20no")
	if res.Success {
		t.Fatal("error parameter must win even when a code is present")
	}
	if !strings.Contains(res.Err, "access_denied") {
		t.Errorf("error text %q missing error param", res.Err)
	}
	if !strings.Contains(res.Err, "user said no") {
		t.Errorf("error text %q missing decoded description", res.Err)
	}
}

func TestParseCallbackURL_ErrorWithoutDescription(t *testing.T) {
	res := ParseCallbackURL("http://localhost/callback?error=server_error")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Err != "server_error" {
		t.Errorf("error = %q, want bare error code", res.Err)
	}
}

func TestParseCallbackURL_MissingCode(t *testing.T) {
	res := ParseCallbackURL("http://localhost:8912/callback?state=xyz")
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Err, "code") {
		t.Errorf("error %q should mention the missing code", res.Err)
	}
}

func TestParseCallbackURL_BadInput(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"unparsable", "http://bad url\x7f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseCallbackURL(tt.url)
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Err == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestIsCallbackURL_WithBase(t *testing.T) {
	base := "http://localhost:8912/callback"

	tests := []struct {
		url  string
		want bool
	}{
		{"http://localhost:8912/callback?code=x", true},
		{"http://localhost:8912/callback", true},
		{"https://localhost:8912/callback?code=x", true}, // scheme ignored
		{"http://localhost:9999/callback?code=x", false}, // port differs
		{"http://localhost:8912/other?code=x", false},    // path differs
		{"http://example.com:8912/callback", false},      // host differs
		{"http://localhost/callback", false},             // missing port
		{"not a url \x7f", false},
	}

	for _, tt := range tests {
		if got := IsCallbackURL(tt.url, base); got != tt.want {
			t.Errorf("IsCallbackURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestIsCallbackURL_Heuristic(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://localhost:8912/callback?code=x", true},
		{"http://127.0.0.1/auth/callback", true},
		{"http://[::1]:7777/callback", true},
		{"http://example.com/callback", false},
		{"http://localhost:8912/authorize", false},
	}

	for _, tt := range tests {
		if got := IsCallbackURL(tt.url, ""); got != tt.want {
			t.Errorf("IsCallbackURL(%q, \"\") = %v, want %v", tt.url, got, tt.want)
		}
	}
}
