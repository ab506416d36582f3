package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMerge_OverrideWinsFieldByField(t *testing.T) {
	global := Settings{URL: "https://apprise.example", Token: "abc", Tags: "home"}
	user := Settings{Token: "xyz"}

	got := Merge(global, user)
	if got.URL != "https://apprise.example" || got.Token != "xyz" || got.Tags != "home" {
		t.Fatalf("merge = %+v", got)
	}

	// Tags default to "all" when unset at both levels.
	got = Merge(Settings{URL: "u"}, Settings{})
	if got.Tags != DefaultTags {
		t.Fatalf("tags = %q, want %q", got.Tags, DefaultTags)
	}
}

func TestRender(t *testing.T) {
	vars := TemplateVars{
		Evolution:     "\U0001F4C9",
		PreviousPrice: "$10.00",
		NewPrice:      "$9.50",
		Min:           "$9.50",
		Max:           "$12.00",
		URL:           "https://shop.example/w",
	}

	body := Render("", vars)
	for _, want := range []string{"$10.00", "$9.50", "$12.00", "https://shop.example/w", "\U0001F4C9"} {
		if !strings.Contains(body, want) {
			t.Fatalf("default template missing %q in %q", want, body)
		}
	}

	custom := Render("now {newPrice} ({unknown})", vars)
	if custom != "now $9.50 ({unknown})" {
		t.Fatalf("custom render = %q", custom)
	}
}

func TestEvolutionGlyphs(t *testing.T) {
	if g := Evolution("$10.00", "$12.00"); g != "\U0001F4C8" {
		t.Fatalf("up glyph = %q", g)
	}
	if g := Evolution("$12.00", "$10.00"); g != "\U0001F4C9" {
		t.Fatalf("down glyph = %q", g)
	}
	if g := Evolution("$10.00", "$10.00"); g != "➖" {
		t.Fatalf("flat glyph = %q", g)
	}
}

func TestDispatcher_HTTPTransport(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Settings{URL: srv.URL, Token: "tok123"}, srv.Client())
	diag, err := d.Send(context.Background(), Settings{}, Message{Title: "T", Body: "B"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diag != "" {
		t.Fatalf("http transport diagnostic = %q", diag)
	}
	if gotPath != "/notify/tok123" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotPayload["title"] != "T" || gotPayload["body"] != "B" || gotPayload["tags"] != DefaultTags {
		t.Fatalf("payload = %+v", gotPayload)
	}
}

func TestDispatcher_HTTPFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(Settings{URL: srv.URL}, srv.Client())
	if _, err := d.Send(context.Background(), Settings{}, Message{Title: "T"}); err == nil {
		t.Fatal("expected delivery error")
	}
}

func TestDispatcher_LocalTransportExitCode(t *testing.T) {
	d := NewDispatcher(Settings{URL: "cfg://x", Token: LocalToken}, nil)
	d.binary = "/bin/true"
	if _, err := d.Send(context.Background(), Settings{}, Message{Title: "T", Body: "B"}); err != nil {
		t.Fatalf("zero exit code must succeed: %v", err)
	}

	d.binary = "/bin/false"
	if _, err := d.Send(context.Background(), Settings{}, Message{Title: "T", Body: "B"}); err == nil {
		t.Fatal("non-zero exit code must fail")
	}
}
