package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Reliability is the delivery guarantee requested for a send or negotiated
// for a channel.
type Reliability uint8

const (
	// Unreliable messages may be lost, duplicated or reordered.
	Unreliable Reliability = iota

	// UnreliableSequenced messages may be lost, but stale messages are
	// dropped instead of being delivered out of order.
	UnreliableSequenced

	// Reliable messages are always delivered, in any order.
	Reliable

	// ReliableOrdered messages are always delivered, in send order.
	ReliableOrdered
)

// reliabilityCount is the number of defined reliability levels.
const reliabilityCount = 4

// ErrUnsupportedReliability indicates a transport cannot honor a reliability level.
var ErrUnsupportedReliability = errors.New("unsupported reliability")

// ErrInvalidReliability indicates a reliability value outside the defined set.
var ErrInvalidReliability = errors.New("invalid reliability")

// String returns the reliability name.
func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "UNRELIABLE"
	case UnreliableSequenced:
		return "UNRELIABLE_SEQUENCED"
	case Reliable:
		return "RELIABLE"
	case ReliableOrdered:
		return "RELIABLE_ORDERED"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether r is one of the defined levels.
func (r Reliability) Valid() bool {
	return r < reliabilityCount
}

// IsSupportedBy reports whether s can honor r.
func (r Reliability) IsSupportedBy(s Supporter) bool {
	if s == nil || !r.Valid() {
		return false
	}
	return s.SupportsReliability(r)
}

// MarshalText implements encoding.TextMarshaler so reliabilities read
// naturally in YAML and TOML config files.
func (r Reliability) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidReliability, r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reliability) UnmarshalText(text []byte) error {
	parsed, err := ParseReliability(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseReliability parses a reliability name. Matching is case-insensitive
// and accepts '-' in place of '_'.
func ParseReliability(s string) (Reliability, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for r := Reliability(0); r < reliabilityCount; r++ {
		if r.String() == norm {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidReliability, s)
}

// Supporter is anything that declares which reliability levels it honors.
// Transport engines and reliability sets implement it.
type Supporter interface {
	SupportsReliability(r Reliability) bool
}

// ReliabilitySet is a bit set of reliability levels.
type ReliabilitySet uint8

// NewReliabilitySet returns a set holding the given levels. Invalid levels
// are ignored.
func NewReliabilitySet(levels ...Reliability) ReliabilitySet {
	var s ReliabilitySet
	for _, r := range levels {
		if r.Valid() {
			s |= 1 << r
		}
	}
	return s
}

// AllReliabilities is the set of every defined level.
var AllReliabilities = NewReliabilitySet(Unreliable, UnreliableSequenced, Reliable, ReliableOrdered)

// Has reports whether r is in the set.
func (s ReliabilitySet) Has(r Reliability) bool {
	return r.Valid() && s&(1<<r) != 0
}

// SupportsReliability implements Supporter.
func (s ReliabilitySet) SupportsReliability(r Reliability) bool {
	return s.Has(r)
}

// List returns the levels in the set in ascending order.
func (s ReliabilitySet) List() []Reliability {
	var out []Reliability
	for r := Reliability(0); r < reliabilityCount; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// String returns the set as a comma separated list.
func (s ReliabilitySet) String() string {
	levels := s.List()
	names := make([]string, len(levels))
	for i, r := range levels {
		names[i] = r.String()
	}
	return strings.Join(names, ",")
}

// UnsupportedReliabilityError reports a reliability a transport cannot honor.
type UnsupportedReliabilityError struct {
	Reliability Reliability
	Transport   string
	Supported   ReliabilitySet
}

func (e *UnsupportedReliabilityError) Error() string {
	return fmt.Sprintf("%s does not support %s (supported: %s)", e.Transport, e.Reliability, e.Supported)
}

// Is matches ErrUnsupportedReliability.
func (e *UnsupportedReliabilityError) Is(target error) bool {
	return target == ErrUnsupportedReliability
}

// CheckReliability returns nil when s honors r, or an
// *UnsupportedReliabilityError naming transport otherwise.
func CheckReliability(r Reliability, transport string, s ReliabilitySet) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidReliability, r)
	}
	if !r.IsSupportedBy(s) {
		return &UnsupportedReliabilityError{Reliability: r, Transport: transport, Supported: s}
	}
	return nil
}
