package datapool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

// WordlistType describes how a raw line is sliced into named fields.
type WordlistType struct {
	Name      string
	Separator string
	Slices    []string
}

var wordlistTypes = map[string]WordlistType{
	"default":     {Name: "Default", Slices: []string{"DATA"}},
	"credentials": {Name: "Credentials", Separator: ":", Slices: []string{"USER", "PASS"}},
	"emails":      {Name: "Emails", Separator: ":", Slices: []string{"EMAIL", "PASS"}},
	"numeric":     {Name: "Numeric", Slices: []string{"CODE"}},
	"urls":        {Name: "URLs", Slices: []string{"URL"}},
}

func LookupWordlistType(name string) (WordlistType, error) {
	if name == "" {
		return wordlistTypes["default"], nil
	}
	wt, ok := wordlistTypes[strings.ToLower(name)]
	if !ok {
		return WordlistType{}, fmt.Errorf("unknown wordlist type %q (known: %s)", name, strings.Join(WordlistTypeNames(), ", "))
	}
	return wt, nil
}

func WordlistTypeNames() []string {
	names := make([]string, 0, len(wordlistTypes))
	for _, wt := range wordlistTypes {
		names = append(names, wt.Name)
	}
	sort.Strings(names)
	return names
}

// Line builds a DataLine for data, splitting it into the type's slices. DATA
// always holds the full line.
func (w WordlistType) Line(index int64, data string) domain.DataLine {
	fields := make(map[string]string, len(w.Slices)+1)
	fields["DATA"] = data

	if w.Separator == "" || len(w.Slices) < 2 {
		if len(w.Slices) == 1 {
			fields[w.Slices[0]] = data
		}
	} else {
		parts := strings.SplitN(data, w.Separator, len(w.Slices))
		for i, name := range w.Slices {
			if i < len(parts) {
				fields[name] = parts[i]
			} else {
				fields[name] = ""
			}
		}
	}

	return domain.DataLine{Index: index, Data: data, Fields: fields}
}
