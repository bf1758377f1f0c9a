package datapool

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

const maxLineLength = 1024 * 1024

// FilePool reads a wordlist file one line at a time. Blank lines are ignored
// both when iterating and when counting.
type FilePool struct {
	path     string
	wordlist WordlistType

	cursor
	file    *os.File
	scanner *bufio.Scanner

	sizeOnce sync.Once
	size     int64
	sizeOK   bool
}

func NewFilePool(path string, wordlist WordlistType) (*FilePool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("wordlist %s is a directory", path)
	}
	return &FilePool{path: path, wordlist: wordlist}, nil
}

func (p *FilePool) Path() string {
	return p.path
}

func (p *FilePool) Skip(n int64) error {
	return p.setSkip(n)
}

func (p *FilePool) Size() (int64, bool) {
	p.sizeOnce.Do(func() {
		count, err := countLines(p.path)
		if err != nil {
			return
		}
		p.size, p.sizeOK = count, true
	})
	return p.size, p.sizeOK
}

func (p *FilePool) Next() (domain.DataLine, error) {
	if !p.started {
		p.started = true
		if err := p.open(); err != nil {
			return domain.DataLine{}, err
		}
		for p.index < p.skip {
			if _, err := p.scan(); err != nil {
				return domain.DataLine{}, err
			}
			p.index++
		}
	}

	if p.scanner == nil {
		return domain.DataLine{}, ErrEndOfData
	}

	data, err := p.scan()
	if err != nil {
		return domain.DataLine{}, err
	}

	line := p.wordlist.Line(p.index, data)
	p.index++
	return line, nil
}

// Close releases the file handle; further calls to Next return ErrEndOfData.
func (p *FilePool) Close() error {
	p.started = true
	p.scanner = nil
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *FilePool) open() error {
	file, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("open wordlist: %w", err)
	}
	p.file = file
	p.scanner = newLineScanner(file)
	return nil
}

func (p *FilePool) scan() (string, error) {
	for p.scanner.Scan() {
		text := strings.TrimRight(p.scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		return text, nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", fmt.Errorf("read wordlist: %w", err)
	}
	_ = p.Close()
	return "", ErrEndOfData
}

func newLineScanner(file *os.File) *bufio.Scanner {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	return scanner
}

func countLines(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var count int64
	scanner := newLineScanner(file)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count, scanner.Err()
}
