package checks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

const loginConfig = `{
  "metadata": {"name": "Example Login", "author": "ob"},
  "settings": {
    "suggested_bots": 5,
    "custom_inputs": [{"variable": "REGION", "description": "Region code", "default": "eu"}]
  },
  "requests": [
    {"label": "login", "method": "post", "url": "%s/login?region=<input.REGION>",
     "headers": {"Content-Type": "application/x-www-form-urlencoded"},
     "body": "user=<input.USER>&pass=<input.PASS>"}
  ],
  "captures": [{"name": "plan", "source": "body", "regex": "plan=(\\w+)"}],
  "keychains": [
    {"status": "SUCCESS", "keys": [{"source": "body", "condition": "contains", "value": "welcome"}]},
    {"status": "BAN", "keys": [{"source": "status", "condition": "equals", "value": "429"}]},
    {"status": "FAIL", "mode": "and", "keys": [
      {"source": "body", "condition": "contains", "value": "invalid"},
      {"source": "header:X-Reason", "condition": "regex", "value": "^cred"}
    ]}
  ]
}`

func newLoginServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("region") != "eu" {
			http.Error(w, "bad region", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		switch string(body) {
		case "user=alice&pass=secret":
			_, _ = w.Write([]byte("welcome back, plan=gold"))
		case "user=mallory&pass=x":
			w.WriteHeader(http.StatusTooManyRequests)
		case "user=bob&pass=wrong":
			w.Header().Set("X-Reason", "credentials")
			_, _ = w.Write([]byte("invalid login"))
		default:
			_, _ = w.Write([]byte("something else"))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func loadLoginCheck(t *testing.T, serverURL string) *HTTPCheck {
	t.Helper()
	cfg, err := ParseConfig([]byte(strings.Replace(loginConfig, "%s", serverURL, 1)))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}
	return NewHTTPCheck(cfg)
}

func credentials(user, pass string) domain.BotInput {
	return domain.BotInput{
		Line: domain.DataLine{
			Data:   user + ":" + pass,
			Fields: map[string]string{"USER": user, "PASS": pass},
		},
		CustomInputs: map[string]string{"REGION": "eu"},
	}
}

func TestHTTPCheckClassifiesResponses(t *testing.T) {
	server := newLoginServer(t)
	check := loadLoginCheck(t, server.URL)

	cases := []struct {
		user, pass string
		want       string
	}{
		{"alice", "secret", "SUCCESS"},
		{"mallory", "x", "BAN"},
		{"bob", "wrong", "FAIL"},
		{"carol", "nope", "NONE"},
	}

	for _, tc := range cases {
		outcome, err := check.Run(context.Background(), credentials(tc.user, tc.pass))
		if err != nil {
			t.Fatalf("Run(%s) returned error: %v", tc.user, err)
		}
		if outcome.Status != tc.want {
			t.Fatalf("Run(%s) status = %s, want %s", tc.user, outcome.Status, tc.want)
		}
	}
}

func TestHTTPCheckCapturesValues(t *testing.T) {
	server := newLoginServer(t)
	check := loadLoginCheck(t, server.URL)

	outcome, err := check.Run(context.Background(), credentials("alice", "secret"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Captures["plan"] != "gold" {
		t.Fatalf("expected captured plan gold, got %v", outcome.Captures)
	}
}

func TestHTTPCheckMetadata(t *testing.T) {
	check := loadLoginCheck(t, "http://127.0.0.1")

	if check.Name() != "Example Login" || check.SuggestedBots() != 5 || check.NeedsProxies() {
		t.Fatalf("unexpected metadata %s/%d/%v", check.Name(), check.SuggestedBots(), check.NeedsProxies())
	}
	inputs := check.CustomInputs()
	if len(inputs) != 1 || inputs[0].Variable != "REGION" || inputs[0].Default != "eu" {
		t.Fatalf("unexpected custom inputs %+v", inputs)
	}
}

func TestHTTPCheckBanIfNoMatch(t *testing.T) {
	server := newLoginServer(t)
	cfg, err := ParseConfig([]byte(strings.Replace(loginConfig, "%s", server.URL, 1)))
	if err != nil {
		t.Fatalf("ParseConfig returned error: %v", err)
	}
	cfg.Settings.BanIfNoMatch = true

	outcome, err := NewHTTPCheck(cfg).Run(context.Background(), credentials("carol", "nope"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != "BAN" {
		t.Fatalf("expected BAN without a matching keychain, got %s", outcome.Status)
	}
}

func TestHTTPCheckTransportFailure(t *testing.T) {
	server := newLoginServer(t)
	check := loadLoginCheck(t, server.URL)
	server.Close()

	if _, err := check.Run(context.Background(), credentials("alice", "secret")); err == nil {
		t.Fatal("expected an error for a closed server")
	}
}

func TestHTTPCheckHonoursContext(t *testing.T) {
	server := newLoginServer(t)
	check := loadLoginCheck(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := check.Run(ctx, credentials("alice", "secret"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReplacePlaceholders(t *testing.T) {
	input := domain.BotInput{
		Line:         domain.DataLine{Fields: map[string]string{"USER": "alice"}},
		CustomInputs: map[string]string{"USER": "ignored", "KEY": "k1"},
	}

	got := replacePlaceholders("u=<input.USER>&k=<input.KEY>&x=<input.MISSING>", input)
	if got != "u=alice&k=k1&x=<input.MISSING>" {
		t.Fatalf("unexpected replacement %q", got)
	}
}

func TestParseConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing name":      `{"requests":[{"url":"http://x"}]}`,
		"no requests":       `{"metadata":{"name":"a"}}`,
		"bad capture":       `{"metadata":{"name":"a"},"requests":[{"url":"http://x"}],"captures":[{"name":"c","regex":"("}]}`,
		"unknown condition": `{"metadata":{"name":"a"},"requests":[{"url":"http://x"}],"keychains":[{"status":"FAIL","keys":[{"condition":"startswith"}]}]}`,
		"malformed json":    `{`,
	}

	for name, raw := range cases {
		if _, err := ParseConfig([]byte(raw)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadConfigDefaultsMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "check.json")
	if err := os.WriteFile(path, []byte(`{"metadata":{"name":"a"},"requests":[{"url":"http://x"}]}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Requests[0].Method != http.MethodGet {
		t.Fatalf("expected GET default, got %s", cfg.Requests[0].Method)
	}
}
