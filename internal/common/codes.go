// Package common provides small shared utilities, currently the generation of
// human-typable bootstrap codes.
package common

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// CodeSegmentLen is the length of each segment of a bootstrap code.
	CodeSegmentLen = 8

	// Character set for code generation. Uppercase letters and digits only, so
	// codes survive being read aloud or typed on a scanner keypad.
	codeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// secureRandomInt generates a cryptographically secure random number in [0, max).
// Rejection sampling avoids modulo bias.
func secureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("max must be positive, got %d", max)
	}
	if max > math.MaxInt32 {
		return 0, fmt.Errorf("max too large: %d", max)
	}

	limit := (math.MaxUint64 / uint64(max)) * uint64(max)

	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("failed to generate random bytes: %w", err)
		}
		n := binary.BigEndian.Uint64(buf[:])
		if n < limit {
			if n > uint64(math.MaxInt) {
				continue
			}
			return int(n % uint64(max)), nil
		}
	}
}

// BootstrapCode generates a code of the form XXXXXXXX-XXXXXXXX. The code is a
// one-time bootstrap secret, not a signed credential; it only authorizes
// initiating a registration.
func BootstrapCode() (string, error) {
	first, err := codeSegment(CodeSegmentLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate bootstrap code: %w", err)
	}
	second, err := codeSegment(CodeSegmentLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate bootstrap code: %w", err)
	}
	return first + "-" + second, nil
}

// codeSegment generates a random alphanumeric string of the given length.
func codeSegment(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", length)
	}

	result := make([]byte, length)
	for i := range result {
		idx, err := secureRandomInt(len(codeChars))
		if err != nil {
			return "", fmt.Errorf("failed to generate character at position %d: %w", i, err)
		}
		result[i] = codeChars[idx]
	}
	return string(result), nil
}
