package domain

import (
	"sort"
	"strings"
	"time"
)

type Status uint8

const (
	StatusNone Status = iota
	StatusSuccess
	StatusFail
	StatusBan
	StatusRetry
	StatusError
	StatusCustom
	StatusUnrecognized
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFail:
		return "FAIL"
	case StatusBan:
		return "BAN"
	case StatusRetry:
		return "RETRY"
	case StatusError:
		return "ERROR"
	case StatusNone:
		return "NONE"
	case StatusCustom:
		return "CUSTOM"
	default:
		return "UNRECOGNIZED"
	}
}

// ParseStatus maps a raw status string from check logic onto the fixed
// taxonomy. The second return value is false for StatusUnrecognized.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS":
		return StatusSuccess, true
	case "FAIL":
		return StatusFail, true
	case "BAN":
		return StatusBan, true
	case "RETRY":
		return StatusRetry, true
	case "ERROR":
		return StatusError, true
	case "NONE", "":
		return StatusNone, true
	case "CUSTOM":
		return StatusCustom, true
	default:
		return StatusUnrecognized, false
	}
}

// BotInput is what a check receives for one task.
type BotInput struct {
	Line         DataLine
	Proxy        *Proxy
	CustomInputs map[string]string
}

// Outcome is the raw verdict of a check before classification.
type Outcome struct {
	Status   string
	Captures map[string]string
}

type CheckResult struct {
	ID        string            `json:"id"`
	JobID     string            `json:"job_id"`
	Config    string            `json:"config"`
	Status    Status            `json:"-"`
	RawStatus string            `json:"status"`
	Line      DataLine          `json:"line"`
	Proxy     *Proxy            `json:"proxy,omitempty"`
	Captures  map[string]string `json:"captures,omitempty"`
	Error     string            `json:"error,omitempty"`
	Elapsed   time.Duration     `json:"elapsed"`
	CheckedAt time.Time         `json:"checked_at"`
}

// CapturedData renders the captures as "k = v | k = v" in key order.
func (r CheckResult) CapturedData() string {
	if len(r.Captures) == 0 {
		return ""
	}

	keys := make([]string, 0, len(r.Captures))
	for k := range r.Captures {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" = "+r.Captures[k])
	}
	return strings.Join(parts, " | ")
}
