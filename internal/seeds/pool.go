package seeds

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Source names the seed list a request template draws its value from.
type Source int

const (
	None Source = iota
	UUIDs
	PrefLabels
	Schemes
)

func (s Source) String() string {
	switch s {
	case UUIDs:
		return "uuids"
	case PrefLabels:
		return "prefLabels"
	case Schemes:
		return "schemes"
	default:
		return "none"
	}
}

// File returns the seed file name backing the source.
func (s Source) File() string {
	if s == None {
		return ""
	}
	return s.String() + ".txt"
}

// Pool holds the seed lists loaded once at startup. It is never mutated
// after LoadPool returns, so actors may share it freely.
type Pool struct {
	UUIDs      []string
	PrefLabels []string
	Schemes    []string

	// Missing lists the seed files that did not exist.
	Missing []string
}

// LoadPool reads uuids.txt, prefLabels.txt and schemes.txt from dir.
func LoadPool(dir string) (*Pool, error) {
	p := &Pool{}
	for _, src := range []Source{UUIDs, PrefLabels, Schemes} {
		path := filepath.Join(dir, src.File())
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			p.Missing = append(p.Missing, path)
			continue
		}

		lines, err := ReadLines(path)
		if err != nil {
			return nil, err
		}
		p.set(src, lines)
	}
	return p, nil
}

func (p *Pool) set(src Source, lines []string) {
	switch src {
	case UUIDs:
		p.UUIDs = lines
	case PrefLabels:
		p.PrefLabels = lines
	case Schemes:
		p.Schemes = lines
	}
}

// Values returns the list backing src; nil for None.
func (p *Pool) Values(src Source) []string {
	if p == nil {
		return nil
	}
	switch src {
	case UUIDs:
		return p.UUIDs
	case PrefLabels:
		return p.PrefLabels
	case Schemes:
		return p.Schemes
	default:
		return nil
	}
}

// Len returns the number of entries available for src.
func (p *Pool) Len(src Source) int {
	return len(p.Values(src))
}
