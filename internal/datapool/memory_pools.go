package datapool

import (
	"fmt"
	"strconv"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

// ListPool serves lines from memory.
type ListPool struct {
	lines    []string
	wordlist WordlistType
	cursor
}

func NewListPool(lines []string, wordlist WordlistType) *ListPool {
	return &ListPool{lines: lines, wordlist: wordlist}
}

func (p *ListPool) Skip(n int64) error {
	return p.setSkip(n)
}

func (p *ListPool) Size() (int64, bool) {
	return int64(len(p.lines)), true
}

func (p *ListPool) Next() (domain.DataLine, error) {
	if !p.started {
		p.started = true
		p.index = p.skip
	}
	if p.index >= int64(len(p.lines)) {
		return domain.DataLine{}, ErrEndOfData
	}
	line := p.wordlist.Line(p.index, p.lines[p.index])
	p.index++
	return line, nil
}

// RangePool yields Amount numbers starting at Start, Step apart. With Pad set
// every number is left padded with zeros to the width of the largest one.
type RangePool struct {
	start  int64
	amount int64
	step   int64
	pad    bool
	width  int
	cursor
}

func NewRangePool(start, amount, step int64, pad bool) (*RangePool, error) {
	if amount < 0 {
		return nil, fmt.Errorf("range amount must not be negative, got %d", amount)
	}
	if step == 0 {
		step = 1
	}

	width := 0
	if pad && amount > 0 {
		last := start + (amount-1)*step
		width = len(strconv.FormatInt(max(abs(start), abs(last)), 10))
	}

	return &RangePool{start: start, amount: amount, step: step, pad: pad, width: width}, nil
}

func (p *RangePool) Skip(n int64) error {
	return p.setSkip(n)
}

func (p *RangePool) Size() (int64, bool) {
	return p.amount, true
}

func (p *RangePool) Next() (domain.DataLine, error) {
	if !p.started {
		p.started = true
		p.index = p.skip
	}
	if p.index >= p.amount {
		return domain.DataLine{}, ErrEndOfData
	}

	value := p.start + p.index*p.step
	data := strconv.FormatInt(value, 10)
	if p.pad {
		data = fmt.Sprintf("%0*d", p.width, value)
	}

	line := domain.DataLine{
		Index:  p.index,
		Data:   data,
		Fields: map[string]string{"DATA": data},
	}
	p.index++
	return line, nil
}

// InfinitePool yields empty lines forever; its size is unknown.
type InfinitePool struct {
	cursor
}

func NewInfinitePool() *InfinitePool {
	return &InfinitePool{}
}

func (p *InfinitePool) Skip(n int64) error {
	return p.setSkip(n)
}

func (p *InfinitePool) Size() (int64, bool) {
	return 0, false
}

func (p *InfinitePool) Next() (domain.DataLine, error) {
	if !p.started {
		p.started = true
		p.index = p.skip
	}
	line := domain.DataLine{Index: p.index, Fields: map[string]string{"DATA": ""}}
	p.index++
	return line, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
