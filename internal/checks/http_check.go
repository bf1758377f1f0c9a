package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Binz120/OpenBullet2/internal/domain"
	"github.com/Binz120/OpenBullet2/internal/support"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBodyLength = 1 << 20
)

var placeholderPattern = regexp.MustCompile(`<input\.([A-Za-z0-9_]+)>`)

// HTTPCheck runs the requests of a Config in order and classifies the last
// response with its keychains.
type HTTPCheck struct {
	cfg Config
}

func NewHTTPCheck(cfg Config) *HTTPCheck {
	return &HTTPCheck{cfg: cfg}
}

func (c *HTTPCheck) Name() string {
	return c.cfg.Metadata.Name
}

func (c *HTTPCheck) NeedsProxies() bool {
	return c.cfg.Settings.NeedsProxies
}

func (c *HTTPCheck) SuggestedBots() int {
	return c.cfg.Settings.SuggestedBots
}

func (c *HTTPCheck) CustomInputs() []CustomInput {
	return c.cfg.Settings.CustomInputs
}

type response struct {
	status  int
	headers http.Header
	body    string
}

func (r response) source(name string) string {
	switch {
	case strings.EqualFold(name, "status"):
		return strconv.Itoa(r.status)
	case len(name) > len("header:") && strings.EqualFold(name[:len("header:")], "header:"):
		return r.headers.Get(name[len("header:"):])
	default:
		return r.body
	}
}

func (c *HTTPCheck) Run(ctx context.Context, input domain.BotInput) (domain.Outcome, error) {
	timeout := defaultRequestTimeout
	if c.cfg.Settings.RequestTimeoutMs > 0 {
		timeout = time.Duration(c.cfg.Settings.RequestTimeoutMs) * time.Millisecond
	}

	transport, err := support.NewTransport(input.Proxy, timeout)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	var last response
	for _, req := range c.cfg.Requests {
		last, err = c.do(ctx, client, req, input)
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("request %s: %w", requestName(req), err)
		}
	}

	return domain.Outcome{
		Status:   c.evaluate(last),
		Captures: c.capture(last),
	}, nil
}

func (c *HTTPCheck) do(ctx context.Context, client *http.Client, r Request, input domain.BotInput) (response, error) {
	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(replacePlaceholders(r.Body, input))
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, replacePlaceholders(r.URL, input), body)
	if err != nil {
		return response{}, err
	}
	for name, value := range r.Headers {
		req.Header.Set(name, replacePlaceholders(value, input))
	}
	req.Header.Set("Connection", "close")

	resp, err := client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLength))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}

	return response{status: resp.StatusCode, headers: resp.Header, body: string(data)}, nil
}

// evaluate returns the status of the first matching keychain. Without a
// match the result is NONE, or BAN when the config asks for it.
func (c *HTTPCheck) evaluate(resp response) string {
	for _, chain := range c.cfg.Keychains {
		if chain.matches(resp) {
			return chain.Status
		}
	}
	if c.cfg.Settings.BanIfNoMatch {
		return domain.StatusBan.String()
	}
	return domain.StatusNone.String()
}

func (c *HTTPCheck) capture(resp response) map[string]string {
	if len(c.cfg.Captures) == 0 {
		return nil
	}

	captures := make(map[string]string)
	for _, capture := range c.cfg.Captures {
		match := capture.re.FindStringSubmatch(resp.source(capture.Source))
		switch {
		case len(match) > 1:
			captures[capture.Name] = match[1]
		case len(match) == 1:
			captures[capture.Name] = match[0]
		}
	}
	return captures
}

func (k Keychain) matches(resp response) bool {
	if len(k.Keys) == 0 {
		return false
	}

	all := strings.EqualFold(k.Mode, "and")
	for _, key := range k.Keys {
		ok := key.matches(resp)
		if all && !ok {
			return false
		}
		if !all && ok {
			return true
		}
	}
	return all
}

func (k Key) matches(resp response) bool {
	value := resp.source(k.Source)

	switch strings.ToLower(k.Condition) {
	case "contains":
		return strings.Contains(value, k.Value)
	case "notcontains":
		return !strings.Contains(value, k.Value)
	case "equals":
		return value == k.Value
	case "regex":
		return k.re != nil && k.re.MatchString(value)
	default:
		return false
	}
}

// replacePlaceholders fills <input.NAME> from the line's fields first and the
// custom inputs second. Unknown names are left untouched.
func replacePlaceholders(text string, input domain.BotInput) string {
	if !strings.Contains(text, "<input.") {
		return text
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := input.Line.Fields[name]; ok {
			return value
		}
		if value, ok := input.CustomInputs[name]; ok {
			return value
		}
		return match
	})
}

func requestName(r Request) string {
	if r.Label != "" {
		return r.Label
	}
	return r.Method + " " + r.URL
}
