// Package checks loads JSON check configurations and runs them as HTTP
// request sequences.
package checks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid check config")

type Config struct {
	Metadata  Metadata   `json:"metadata"`
	Settings  Settings   `json:"settings"`
	Requests  []Request  `json:"requests"`
	Captures  []Capture  `json:"captures"`
	Keychains []Keychain `json:"keychains"`
}

type Metadata struct {
	Name   string `json:"name"`
	Author string `json:"author"`
}

type Settings struct {
	NeedsProxies     bool          `json:"needs_proxies"`
	SuggestedBots    int           `json:"suggested_bots"`
	RequestTimeoutMs uint32        `json:"request_timeout"`
	BanIfNoMatch     bool          `json:"ban_if_no_match"`
	CustomInputs     []CustomInput `json:"custom_inputs"`
}

// CustomInput is a question asked before the job starts. The answer is
// available to requests as <input.Variable>.
type CustomInput struct {
	Variable    string `json:"variable"`
	Description string `json:"description"`
	Default     string `json:"default"`
}

type Request struct {
	Label   string            `json:"label"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Capture extracts a value from the last response. With a capture group the
// first group is stored, otherwise the whole match.
type Capture struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Regex  string `json:"regex"`

	re *regexp.Regexp
}

// Keychain yields Status when its keys match (all of them with mode "and",
// any of them otherwise).
type Keychain struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
	Keys   []Key  `json:"keys"`
}

// Key compares one part of the response. Source is "body", "status" or
// "header:<name>"; Condition is contains, notcontains, equals or regex.
type Key struct {
	Source    string `json:"source"`
	Condition string `json:"condition"`
	Value     string `json:"value"`

	re *regexp.Regexp
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read check config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.prepare(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// prepare validates the config and compiles its regular expressions.
func (c *Config) prepare() error {
	if strings.TrimSpace(c.Metadata.Name) == "" {
		return fmt.Errorf("%w: metadata.name is required", ErrInvalidConfig)
	}
	if len(c.Requests) == 0 {
		return fmt.Errorf("%w: at least one request is required", ErrInvalidConfig)
	}

	for i := range c.Requests {
		req := &c.Requests[i]
		if req.URL == "" {
			return fmt.Errorf("%w: request %d has no url", ErrInvalidConfig, i)
		}
		if req.Method == "" {
			req.Method = "GET"
		}
		req.Method = strings.ToUpper(req.Method)
	}

	for i := range c.Captures {
		capture := &c.Captures[i]
		re, err := regexp.Compile(capture.Regex)
		if err != nil {
			return fmt.Errorf("%w: capture %q: %w", ErrInvalidConfig, capture.Name, err)
		}
		capture.re = re
	}

	for i := range c.Keychains {
		chain := &c.Keychains[i]
		if chain.Status == "" {
			return fmt.Errorf("%w: keychain %d has no status", ErrInvalidConfig, i)
		}
		for k := range chain.Keys {
			key := &chain.Keys[k]
			switch strings.ToLower(key.Condition) {
			case "contains", "notcontains", "equals":
			case "regex":
				re, err := regexp.Compile(key.Value)
				if err != nil {
					return fmt.Errorf("%w: keychain %s: %w", ErrInvalidConfig, chain.Status, err)
				}
				key.re = re
			default:
				return fmt.Errorf("%w: unknown key condition %q", ErrInvalidConfig, key.Condition)
			}
		}
	}

	for _, input := range c.Settings.CustomInputs {
		if input.Variable == "" {
			return fmt.Errorf("%w: custom input without variable", ErrInvalidConfig)
		}
	}

	return nil
}
