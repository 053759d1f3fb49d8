// Package ledger turns user range specifications into concrete inclusive
// ledger sequence ranges.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRangeSpec reports malformed or inverted range text.
	ErrInvalidRangeSpec = errors.New("invalid ledger range")
	// ErrDependencyUnavailable reports a failed current-head lookup.
	ErrDependencyUnavailable = errors.New("latest ledger lookup failed")
)

// SpecKind enumerates the accepted range forms.
type SpecKind int

const (
	SpecSingle SpecKind = iota
	SpecInclusive
	SpecRecent
)

// Spec is a parsed, validated range specification.
type Spec struct {
	Kind  SpecKind
	Start uint32
	End   uint32
	Count uint32
}

// Single selects one ledger.
func Single(seq uint32) Spec {
	return Spec{Kind: SpecSingle, Start: seq, End: seq}
}

// Inclusive selects [start, end].
func Inclusive(start, end uint32) (Spec, error) {
	if start > end {
		return Spec{}, fmt.Errorf("%w: start %d is after end %d", ErrInvalidRangeSpec, start, end)
	}
	return Spec{Kind: SpecInclusive, Start: start, End: end}, nil
}

// RecentCount selects the n most recently closed ledgers.
func RecentCount(n uint32) (Spec, error) {
	if n == 0 {
		return Spec{}, fmt.Errorf("%w: count must be positive", ErrInvalidRangeSpec)
	}
	return Spec{Kind: SpecRecent, Count: n}, nil
}

func (s Spec) String() string {
	switch s.Kind {
	case SpecSingle:
		return strconv.FormatUint(uint64(s.Start), 10)
	case SpecInclusive:
		return fmt.Sprintf("%d-%d", s.Start, s.End)
	case SpecRecent:
		return fmt.Sprintf("-%d", s.Count)
	default:
		return "invalid"
	}
}

// ParseSpec accepts "N", "A-B" and "-N".
func ParseSpec(text string) (Spec, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Spec{}, fmt.Errorf("%w: empty", ErrInvalidRangeSpec)
	}

	if rest, ok := strings.CutPrefix(s, "-"); ok {
		n, err := parseSeq(rest)
		if err != nil {
			return Spec{}, err
		}
		return RecentCount(n)
	}

	if startText, endText, ok := strings.Cut(s, "-"); ok {
		start, err := parseSeq(startText)
		if err != nil {
			return Spec{}, err
		}
		end, err := parseSeq(endText)
		if err != nil {
			return Spec{}, err
		}
		return Inclusive(start, end)
	}

	seq, err := parseSeq(s)
	if err != nil {
		return Spec{}, err
	}
	return Single(seq), nil
}

func parseSeq(text string) (uint32, error) {
	t := strings.TrimSpace(text)
	v, err := strconv.ParseUint(t, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a ledger sequence", ErrInvalidRangeSpec, t)
	}
	return uint32(v), nil
}

// Range is a concrete inclusive sequence range.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Len returns the number of ledgers in the range.
func (r Range) Len() uint64 {
	return uint64(r.End) - uint64(r.Start) + 1
}

// Contains reports whether seq lies in the range.
func (r Range) Contains(seq uint32) bool {
	return seq >= r.Start && seq <= r.End
}

// LatestSequenceProvider reports the current network head.
type LatestSequenceProvider interface {
	LatestLedgerSequence(ctx context.Context) (uint32, error)
}

// LatestSequenceFunc adapts a function to LatestSequenceProvider.
type LatestSequenceFunc func(ctx context.Context) (uint32, error)

func (f LatestSequenceFunc) LatestLedgerSequence(ctx context.Context) (uint32, error) {
	return f(ctx)
}

// Resolve turns spec into a Range. Only RecentCount consults latest; a failed
// lookup is returned as ErrDependencyUnavailable and never approximated.
func Resolve(ctx context.Context, spec Spec, latest LatestSequenceProvider) (Range, error) {
	switch spec.Kind {
	case SpecSingle:
		return Range{Start: spec.Start, End: spec.Start}, nil
	case SpecInclusive:
		if spec.Start > spec.End {
			return Range{}, fmt.Errorf("%w: start %d is after end %d", ErrInvalidRangeSpec, spec.Start, spec.End)
		}
		return Range{Start: spec.Start, End: spec.End}, nil
	case SpecRecent:
		if spec.Count == 0 {
			return Range{}, fmt.Errorf("%w: count must be positive", ErrInvalidRangeSpec)
		}
		if latest == nil {
			return Range{}, fmt.Errorf("%w: no latest ledger provider", ErrDependencyUnavailable)
		}
		head, err := latest.LatestLedgerSequence(ctx)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
		}
		var start uint32
		if spec.Count <= head {
			start = head - spec.Count + 1
		}
		return Range{Start: start, End: head}, nil
	default:
		return Range{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidRangeSpec, spec.Kind)
	}
}

// ResolveText parses and resolves in one step.
func ResolveText(ctx context.Context, text string, latest LatestSequenceProvider) (Range, error) {
	spec, err := ParseSpec(text)
	if err != nil {
		return Range{}, err
	}
	return Resolve(ctx, spec, latest)
}
