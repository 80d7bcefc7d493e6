// Package pattern implements wildcard byte-signature scanning over raw
// memory images. It is used to locate the Windows kernel's service
// descriptor tables for syscall-table hooking and shares no state with the
// EPT engine.
package pattern

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wildcard marks a pattern slot that matches any byte.
const Wildcard int16 = -1

// Pattern is a compiled byte signature. Non-negative slots hold the
// expected byte value; Wildcard slots match anything.
type Pattern []int16

// Errors returned by the locator.
var (
	ErrNotFound  = errors.New("pattern: signature not found")
	ErrTruncated = errors.New("pattern: image too small for signature arithmetic")
)

// Parse compiles a space-separated hex signature. "?" and "??" are
// wildcards: "8B F8 ?? 25 FF 0F 00 00".
func Parse(signature string) (Pattern, error) {
	fields := strings.Fields(signature)
	if len(fields) == 0 {
		return nil, fmt.Errorf("pattern: empty signature")
	}
	p := make(Pattern, 0, len(fields))
	for _, f := range fields {
		if f == "?" || f == "??" {
			p = append(p, Wildcard)
			continue
		}
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("pattern: bad byte %q: %w", f, err)
		}
		p = append(p, int16(b))
	}
	return p, nil
}

// MatchAt reports whether the pattern matches data at offset.
func (p Pattern) MatchAt(data []byte, offset int) bool {
	if offset < 0 || offset+len(p) > len(data) {
		return false
	}
	for i, want := range p {
		if want != Wildcard && data[offset+i] != byte(want) {
			return false
		}
	}
	return true
}

// Find returns the offset of the first match, or ok=false when the pattern
// does not occur.
func (p Pattern) Find(data []byte) (offset int, ok bool) {
	if len(p) == 0 || len(p) > len(data) {
		return 0, false
	}
	for i := 0; i <= len(data)-len(p); i++ {
		if p.MatchAt(data, i) {
			return i, true
		}
	}
	return 0, false
}

// Find compiles signature and scans data in one step.
func Find(data []byte, signature string) (offset int, ok bool, err error) {
	p, err := Parse(signature)
	if err != nil {
		return 0, false, err
	}
	offset, ok = p.Find(data)
	return offset, ok, nil
}
