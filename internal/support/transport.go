package support

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

var ErrUnsupportedProxyType = errors.New("unsupported proxy type")

// NewTransport builds a keep-alive free transport that routes through
// proxyToUse, or dials directly when proxyToUse is nil.
func NewTransport(proxyToUse *domain.Proxy, timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 0,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       0,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyToUse == nil {
		return transport, nil
	}

	switch proxyToUse.Type {
	case domain.ProxyTypeHTTP:
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   proxyToUse.GetFullProxy(),
		}
		if proxyToUse.HasAuth() {
			proxyURL.User = url.UserPassword(proxyToUse.Username, proxyToUse.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)

	case domain.ProxyTypeSocks5:
		var auth *proxy.Auth
		if proxyToUse.HasAuth() {
			auth = &proxy.Auth{User: proxyToUse.Username, Password: proxyToUse.Password}
		}
		socksDialer, err := proxy.SOCKS5("tcp", proxyToUse.GetFullProxy(), auth, dialer)
		if err != nil {
			return nil, err
		}
		if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxyType, proxyToUse.Type)
	}

	return transport, nil
}
