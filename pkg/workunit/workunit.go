// Package workunit defines the addressable items a source enumerates:
// calendar dates, numeric document IDs and paths in a browsing tree.
package workunit

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindDate Kind = "date"
	KindID   Kind = "id"
	KindPath Kind = "path"
)

// Unit is one enumerable item. Key is its canonical string form and is what
// the checkpoint stores; Less orders units of the same kind.
type Unit interface {
	Kind() Kind
	Key() string
	Less(other Unit) bool
}

// Date is a calendar day with no time-of-day or zone.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping t's calendar day in its own zone.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate reads the YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) Kind() Kind      { return KindDate }
func (d Date) Key() string     { return d.t.Format(time.DateOnly) }
func (d Date) String() string  { return d.Key() }
func (d Date) Time() time.Time { return d.t }

// Format renders the date with a time layout, e.g. "02/01/2006".
func (d Date) Format(layout string) string { return d.t.Format(layout) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) Less(other Unit) bool {
	if o, ok := other.(Date); ok {
		return d.t.Before(o.t)
	}
	return lessByKind(d, other)
}

// ID is a numeric document identifier.
type ID int64

func (i ID) Kind() Kind     { return KindID }
func (i ID) Key() string    { return strconv.FormatInt(int64(i), 10) }
func (i ID) String() string { return i.Key() }

func (i ID) Less(other Unit) bool {
	if o, ok := other.(ID); ok {
		return i < o
	}
	return lessByKind(i, other)
}

// Path is a leaf reached by walking a tree. Index is the position in the
// depth-first walk and gives the enumeration order.
type Path struct {
	Segments []string
	Index    int
	// Ref carries the leaf's target, usually a document URL.
	Ref string
}

func (p Path) Kind() Kind     { return KindPath }
func (p Path) Key() string    { return strings.Join(p.Segments, "/") }
func (p Path) String() string { return p.Key() }

func (p Path) Less(other Unit) bool {
	o, ok := other.(Path)
	if !ok {
		return lessByKind(p, other)
	}
	if p.Index != o.Index {
		return p.Index < o.Index
	}
	return p.Key() < o.Key()
}

func lessByKind(a, b Unit) bool {
	if a.Kind() != b.Kind() {
		return a.Kind() < b.Kind()
	}
	return a.Key() < b.Key()
}

// Parse rebuilds a date or ID unit from its key. Path units carry state that
// the key alone does not hold, so they cannot be parsed.
func Parse(kind Kind, key string) (Unit, error) {
	switch kind {
	case KindDate:
		return ParseDate(key)
	case KindID:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", key, err)
		}
		return ID(n), nil
	default:
		return nil, fmt.Errorf("cannot parse %s unit %q", kind, key)
	}
}

// DateRange yields every day from first to last inclusive.
func DateRange(first, last Date) iter.Seq[Unit] {
	return func(yield func(Unit) bool) {
		for d := first; !d.After(last); d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}

// IDRange yields first..last inclusive.
func IDRange(first, last int64) iter.Seq[Unit] {
	return func(yield func(Unit) bool) {
		for n := first; n <= last; n++ {
			if !yield(ID(n)) {
				return
			}
		}
	}
}

// Slice yields units in the given order.
func Slice[U Unit](units []U) iter.Seq[Unit] {
	return func(yield func(Unit) bool) {
		for _, u := range units {
			if !yield(u) {
				return
			}
		}
	}
}

// Sort orders units in place by Less.
func Sort(units []Unit) {
	slices.SortStableFunc(units, func(a, b Unit) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return cmp.Compare(a.Key(), b.Key())
		}
	})
}
