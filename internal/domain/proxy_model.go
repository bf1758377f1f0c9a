package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

type ProxyType uint8

const (
	ProxyTypeHTTP ProxyType = iota
	ProxyTypeSocks4
	ProxyTypeSocks4a
	ProxyTypeSocks5
)

func (t ProxyType) String() string {
	switch t {
	case ProxyTypeHTTP:
		return "http"
	case ProxyTypeSocks4:
		return "socks4"
	case ProxyTypeSocks4a:
		return "socks4a"
	case ProxyTypeSocks5:
		return "socks5"
	default:
		return "unknown"
	}
}

func ParseProxyType(raw string) (ProxyType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "http", "https":
		return ProxyTypeHTTP, nil
	case "socks4":
		return ProxyTypeSocks4, nil
	case "socks4a":
		return ProxyTypeSocks4a, nil
	case "socks5", "socks5h":
		return ProxyTypeSocks5, nil
	default:
		return ProxyTypeHTTP, fmt.Errorf("unknown proxy type %q", raw)
	}
}

// ProxyMode decides whether a task gets a proxy bound to it.
type ProxyMode uint8

const (
	ProxyModeDefault ProxyMode = iota
	ProxyModeOff
	ProxyModeOn
)

func (m ProxyMode) String() string {
	switch m {
	case ProxyModeOff:
		return "Off"
	case ProxyModeOn:
		return "On"
	default:
		return "Default"
	}
}

func ParseProxyMode(raw string) (ProxyMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default":
		return ProxyModeDefault, nil
	case "off", "false", "none":
		return ProxyModeOff, nil
	case "on", "force", "true":
		return ProxyModeOn, nil
	default:
		return ProxyModeDefault, fmt.Errorf("unknown proxy mode %q", raw)
	}
}

// Resolve turns Default into On or Off depending on whether the check asks for proxies.
func (m ProxyMode) Resolve(needsProxies bool) ProxyMode {
	if m != ProxyModeDefault {
		return m
	}
	if needsProxies {
		return ProxyModeOn
	}
	return ProxyModeOff
}

type Proxy struct {
	Host     string    `json:"host"`
	Port     uint16    `json:"port"`
	Type     ProxyType `json:"type"`
	Username string    `json:"username,omitempty"`
	Password string    `json:"password,omitempty"`
}

func (proxy *Proxy) SetHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return errors.New("empty proxy host")
	}
	if strings.ContainsAny(host, " /") {
		return fmt.Errorf("invalid proxy host %q", host)
	}
	proxy.Host = host
	return nil
}

func (proxy *Proxy) SetPort(raw string) error {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid proxy port %q", raw)
	}
	proxy.Port = uint16(port)
	return nil
}

func (proxy *Proxy) GetFullProxy() string {
	return net.JoinHostPort(proxy.Host, strconv.Itoa(int(proxy.Port)))
}

func (proxy *Proxy) HasAuth() bool {
	return proxy.Username != "" && proxy.Password != ""
}

// Key identifies a proxy by address, type and credentials.
func (proxy *Proxy) Key() string {
	return strings.ToLower(fmt.Sprintf("%s|%s|%s|%s",
		proxy.Type,
		proxy.GetFullProxy(),
		proxy.Username,
		proxy.Password,
	))
}

func (proxy Proxy) String() string {
	return fmt.Sprintf("(%s)%s", proxy.Type, proxy.GetFullProxy())
}
