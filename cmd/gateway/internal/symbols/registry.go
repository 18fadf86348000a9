// Package symbols canonicalizes subscription pairs and validates them
// against the tradable symbol universe.
package symbols

import (
	"errors"
	"fmt"
	"strings"
)

// Kind qualifies which price stream of a pair is requested.
type Kind string

const (
	// KindSpot is the default oracle price.
	KindSpot Kind = ""
	// KindMark is the mark-price variant, requested as "PAIR:MARK".
	KindMark Kind = "MARK"
)

var (
	ErrInvalidSymbol = errors.New("invalid symbol")
	ErrUnknownPair   = errors.New("unknown pair")
)

// Symbol is a canonical identifier for one price stream: a base pair plus
// an optional price-kind suffix. Immutable once built.
type Symbol struct {
	Pair string
	Kind Kind
}

func (s Symbol) String() string {
	if s.Kind == KindSpot {
		return s.Pair
	}
	return s.Pair + ":" + string(s.Kind)
}

// Normalize trims whitespace, uppercases the pair and validates the optional
// price-kind suffix. It does not check the pair against the known universe.
func Normalize(raw string) (Symbol, error) {
	canonical := strings.ToUpper(strings.TrimSpace(raw))
	if canonical == "" {
		return Symbol{}, fmt.Errorf("%w: empty pair", ErrInvalidSymbol)
	}

	pair := canonical
	kind := KindSpot
	if idx := strings.IndexByte(canonical, ':'); idx >= 0 {
		pair = canonical[:idx]
		switch suffix := canonical[idx+1:]; suffix {
		case string(KindMark):
			kind = KindMark
		default:
			return Symbol{}, fmt.Errorf("%w: unknown price kind %q", ErrInvalidSymbol, suffix)
		}
	}

	base, quote, ok := strings.Cut(pair, "/")
	if !ok || base == "" || quote == "" {
		return Symbol{}, fmt.Errorf("%w: pair must look like BASE/QUOTE", ErrInvalidSymbol)
	}

	return Symbol{Pair: pair, Kind: kind}, nil
}

// Registry holds the known tradable pairs. Both the spot and mark streams of
// a known pair are subscribable. Read-only after construction, safe for
// concurrent use.
type Registry struct {
	known map[string]struct{}
}

func NewRegistry(pairs []string) *Registry {
	known := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		s, err := Normalize(p)
		if err != nil {
			continue
		}
		known[s.Pair] = struct{}{}
	}
	return &Registry{known: known}
}

func (r *Registry) IsKnown(s Symbol) bool {
	_, ok := r.known[s.Pair]
	return ok
}

// Resolve normalizes a raw pair and rejects it when the base pair is not in
// the universe, so a client can tell "invalid request" apart from "no data yet".
func (r *Registry) Resolve(raw string) (Symbol, error) {
	s, err := Normalize(raw)
	if err != nil {
		return Symbol{}, err
	}
	if !r.IsKnown(s) {
		return Symbol{}, fmt.Errorf("%w: %s", ErrUnknownPair, s.Pair)
	}
	return s, nil
}
