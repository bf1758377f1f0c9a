package domain

// DataLine is one line handed out by a data pool. Fields holds the named
// slices produced by the wordlist type and is filled once at consumption.
type DataLine struct {
	Index  int64             `json:"index"`
	Data   string            `json:"data"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (line DataLine) Field(name string) (string, bool) {
	value, ok := line.Fields[name]
	return value, ok
}
