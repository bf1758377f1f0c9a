package proxies

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

var errEmptyLine = errors.New("empty proxy line")

// ParseTextToProxies parses one proxy per line and silently drops lines that
// do not parse.
func ParseTextToProxies(text string, defaultType domain.ProxyType) []domain.Proxy {
	text = strings.ReplaceAll(text, "\r", "")

	lines := strings.Split(text, "\n")
	proxies := make([]domain.Proxy, 0, len(lines))

	for _, line := range lines {
		proxy, err := ParseProxyLine(line, defaultType)
		if err != nil {
			continue
		}
		proxies = append(proxies, proxy)
	}

	return proxies
}

// ParseProxyLine accepts host:port, host:port:user:pass, user:pass@host:port,
// (type)host:port and type://[user:pass@]host:port.
func ParseProxyLine(line string, defaultType domain.ProxyType) (domain.Proxy, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return domain.Proxy{}, errEmptyLine
	}

	proxy := domain.Proxy{Type: defaultType}

	if strings.Contains(line, "://") {
		return parseProxyURL(line)
	}

	if strings.HasPrefix(line, "(") {
		end := strings.Index(line, ")")
		if end < 0 {
			return domain.Proxy{}, fmt.Errorf("unterminated proxy type in %q", line)
		}
		proxyType, err := domain.ParseProxyType(line[1:end])
		if err != nil {
			return domain.Proxy{}, err
		}
		proxy.Type = proxyType
		line = line[end+1:]
	}

	if at := strings.LastIndex(line, "@"); at >= 0 {
		creds := strings.SplitN(line[:at], ":", 2)
		if len(creds) != 2 {
			return domain.Proxy{}, fmt.Errorf("invalid proxy credentials in %q", line)
		}
		proxy.Username, proxy.Password = creds[0], creds[1]
		line = line[at+1:]
	}

	split := strings.Split(line, ":")
	switch len(split) {
	case 2:
	case 4:
		if proxy.Username != "" {
			return domain.Proxy{}, fmt.Errorf("duplicate proxy credentials in %q", line)
		}
		proxy.Username, proxy.Password = split[2], split[3]
	default:
		return domain.Proxy{}, fmt.Errorf("invalid proxy format %q", line)
	}

	if err := proxy.SetHost(split[0]); err != nil {
		return domain.Proxy{}, err
	}
	if err := proxy.SetPort(split[1]); err != nil {
		return domain.Proxy{}, err
	}

	return proxy, nil
}

func parseProxyURL(raw string) (domain.Proxy, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return domain.Proxy{}, fmt.Errorf("invalid proxy url %q: %w", raw, err)
	}

	proxyType, err := domain.ParseProxyType(parsed.Scheme)
	if err != nil {
		return domain.Proxy{}, err
	}

	proxy := domain.Proxy{Type: proxyType}
	if err := proxy.SetHost(parsed.Hostname()); err != nil {
		return domain.Proxy{}, err
	}
	if err := proxy.SetPort(parsed.Port()); err != nil {
		return domain.Proxy{}, err
	}
	if parsed.User != nil {
		proxy.Username = parsed.User.Username()
		proxy.Password, _ = parsed.User.Password()
	}

	return proxy, nil
}
