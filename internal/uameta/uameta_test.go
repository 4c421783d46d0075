package uameta

import (
	"testing"
)

func TestBuild_EmptyUserAgent(t *testing.T) {
	if Build("", "144.0.7559.133", "en-US,en") != nil {
		t.Fatal("expected nil for empty user agent")
	}
}

func TestBuild_Versions(t *testing.T) {
	p := Build("Mozilla/5.0 Test", "144.0.7559.133", "")
	if p == nil {
		t.Fatal("expected non-nil")
	}
	meta := p.UserAgentMetadata
	if meta == nil {
		t.Fatal("expected metadata")
	}
	for _, b := range meta.Brands {
		if b.Brand == "Google Chrome" && b.Version != "144" {
			t.Errorf("expected major version 144, got %s", b.Version)
		}
	}
	for _, b := range meta.FullVersionList {
		if b.Brand == "Google Chrome" && b.Version != "144.0.7559.133" {
			t.Errorf("expected full version 144.0.7559.133, got %s", b.Version)
		}
	}
	if p.AcceptLanguage != "en-US,en" {
		t.Errorf("expected default accept-language, got %s", p.AcceptLanguage)
	}
}

func TestBuild_AcceptLanguage(t *testing.T) {
	p := Build("Mozilla/5.0 Test", "144.0.7559.133", "de-DE,de")
	if p.AcceptLanguage != "de-DE,de" {
		t.Errorf("accept-language not carried through: %s", p.AcceptLanguage)
	}
}

func TestDetectPlatform(t *testing.T) {
	platform, arch := detectPlatform()
	if platform == "" || arch == "" {
		t.Fatal("expected non-empty platform and arch")
	}
}
