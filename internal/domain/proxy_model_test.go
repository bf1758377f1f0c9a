package domain

import (
	"testing"
)

func TestProxySetHostAndPort(t *testing.T) {
	var proxy Proxy
	if err := proxy.SetHost("192.168.10.5"); err != nil {
		t.Fatalf("SetHost returned error: %v", err)
	}
	if err := proxy.SetPort("8080"); err != nil {
		t.Fatalf("SetPort returned error: %v", err)
	}

	if got := proxy.GetFullProxy(); got != "192.168.10.5:8080" {
		t.Fatalf("GetFullProxy returned %s, want 192.168.10.5:8080", got)
	}

	if err := proxy.SetHost(""); err == nil {
		t.Fatal("expected error for empty host, got nil")
	}
	if err := proxy.SetPort("70000"); err == nil {
		t.Fatal("expected error for out of range port, got nil")
	}
	if err := proxy.SetPort("abc"); err == nil {
		t.Fatal("expected error for non numeric port, got nil")
	}
}

func TestProxyKeyIgnoresCredentialCasing(t *testing.T) {
	a := Proxy{Host: "10.0.0.1", Port: 8080, Username: "User", Password: "Secret"}
	b := Proxy{Host: "10.0.0.1", Port: 8080, Username: "user", Password: "secret"}

	if a.Key() != b.Key() {
		t.Fatalf("Key should ignore username/password casing: %q vs %q", a.Key(), b.Key())
	}

	c := Proxy{Host: "10.0.0.1", Port: 8080, Type: ProxyTypeSocks5}
	if a.Key() == c.Key() {
		t.Fatal("Key should differ for different proxy types")
	}
}

func TestProxyHasAuth(t *testing.T) {
	proxy := Proxy{Host: "8.8.8.8", Port: 3128}
	if proxy.HasAuth() {
		t.Fatal("HasAuth should be false without credentials")
	}

	proxy.Username = "name"
	proxy.Password = "pass"
	if !proxy.HasAuth() {
		t.Fatal("HasAuth should be true when username and password are set")
	}

	if got := proxy.String(); got != "(http)8.8.8.8:3128" {
		t.Fatalf("String returned %q", got)
	}
}

func TestParseProxyMode(t *testing.T) {
	cases := map[string]ProxyMode{
		"":        ProxyModeDefault,
		"Default": ProxyModeDefault,
		"off":     ProxyModeOff,
		"ON":      ProxyModeOn,
		"force":   ProxyModeOn,
	}
	for raw, want := range cases {
		got, err := ParseProxyMode(raw)
		if err != nil {
			t.Fatalf("ParseProxyMode(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseProxyMode(%q) = %v, want %v", raw, got, want)
		}
	}

	if _, err := ParseProxyMode("sometimes"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestProxyModeResolve(t *testing.T) {
	if got := ProxyModeDefault.Resolve(true); got != ProxyModeOn {
		t.Fatalf("Default with proxies needed resolved to %v", got)
	}
	if got := ProxyModeDefault.Resolve(false); got != ProxyModeOff {
		t.Fatalf("Default without proxies needed resolved to %v", got)
	}
	if got := ProxyModeOff.Resolve(true); got != ProxyModeOff {
		t.Fatalf("Off must stay Off, got %v", got)
	}
	if got := ProxyModeOn.Resolve(false); got != ProxyModeOn {
		t.Fatalf("On must stay On, got %v", got)
	}
}

func TestParseProxyType(t *testing.T) {
	got, err := ParseProxyType("SOCKS5")
	if err != nil || got != ProxyTypeSocks5 {
		t.Fatalf("ParseProxyType(SOCKS5) = %v, %v", got, err)
	}
	if _, err := ParseProxyType("ftp"); err == nil {
		t.Fatal("expected error for ftp proxy type")
	}
}
