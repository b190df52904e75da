package scenario

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNoTemplates = errors.New("scenario has no templates")
	ErrBadWeight   = errors.New("template weight must be positive")
)

// Intner is the slice of *rand.Rand the selector needs. Each actor owns its
// own source, so no locking happens here.
type Intner interface {
	Intn(n int) int
}

// Selector picks templates with probability weight/total. It holds no
// per-call state; picks are independent.
type Selector struct {
	templates  []Template
	cumulative []int
	total      int
}

func NewSelector(templates []Template) (*Selector, error) {
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}

	s := &Selector{
		templates:  append([]Template(nil), templates...),
		cumulative: make([]int, len(templates)),
	}
	for i, t := range templates {
		if t.Weight <= 0 {
			return nil, fmt.Errorf("%s: %w (got %d)", t.Label(), ErrBadWeight, t.Weight)
		}
		s.total += t.Weight
		s.cumulative[i] = s.total
	}
	return s, nil
}

func (s *Selector) Pick(rng Intner) Template {
	n := rng.Intn(s.total)
	i := sort.SearchInts(s.cumulative, n+1)
	return s.templates[i]
}

func (s *Selector) Templates() []Template {
	return append([]Template(nil), s.templates...)
}

func (s *Selector) TotalWeight() int {
	return s.total
}
