package datapool

import (
	"fmt"
	"strconv"
	"strings"
)

// Open builds the pool named by source. "infinite" yields empty lines forever,
// "range:START:AMOUNT[:STEP[:pad]]" yields numbers and anything else is read
// as a wordlist file sliced by wordlist.
func Open(source string, wordlist WordlistType) (Pool, error) {
	switch {
	case strings.EqualFold(source, "infinite"):
		return NewInfinitePool(), nil
	case len(source) > 6 && strings.EqualFold(source[:6], "range:"):
		return parseRange(source[6:])
	default:
		return NewFilePool(source, wordlist)
	}
}

func parseRange(raw string) (*RangePool, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, fmt.Errorf("range %q: want START:AMOUNT[:STEP[:pad]]", raw)
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("range start: %w", err)
	}
	amount, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("range amount: %w", err)
	}

	step := int64(1)
	if len(parts) > 2 {
		if step, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
			return nil, fmt.Errorf("range step: %w", err)
		}
	}

	pad := false
	if len(parts) > 3 {
		if !strings.EqualFold(parts[3], "pad") {
			return nil, fmt.Errorf("range %q: last part must be pad", raw)
		}
		pad = true
	}

	return NewRangePool(start, amount, step, pad)
}
