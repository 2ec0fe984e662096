package common

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// Similarity fingerprinting for crash traces. Two traces that share their
// leading stack frames collapse to the same fingerprint even when trailing
// noise, addresses or offsets differ.

const (
	simhashBits = 64
	// fingerprintLines bounds the features to the leading frames of the
	// trace, which carry the identity of a crash. Trailing noise past this
	// window never influences the hash.
	fingerprintLines = 10
	shingleSize      = 3
)

var (
	hexAddressPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	numberPattern     = regexp.MustCompile(`\b\d+\b`)
)

// Fingerprint returns the 64-bit simhash of a crash trace as 16 hex digits.
// Deterministic: identical input always yields identical output. Callers
// validate that text is non-empty before hashing.
func Fingerprint(text string) string {
	var votes [simhashBits]int

	for _, feature := range shingleFeatures(text) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		for bit := 0; bit < simhashBits; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				votes[bit]++
			} else {
				votes[bit]--
			}
		}
	}

	var hash uint64
	for bit := 0; bit < simhashBits; bit++ {
		if votes[bit] > 0 {
			hash |= 1 << uint(bit)
		}
	}
	return fmt.Sprintf("%016x", hash)
}

// shingleFeatures extracts token shingles from the leading significant lines
// of a trace. Lines are normalized so frames that differ only in memory
// addresses or numeric offsets produce the same features.
func shingleFeatures(text string) []string {
	var features []string
	for _, line := range significantLines(text, fingerprintLines) {
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) <= shingleSize {
			features = append(features, strings.Join(tokens, " "))
			continue
		}
		for i := 0; i+shingleSize <= len(tokens); i++ {
			features = append(features, strings.Join(tokens[i:i+shingleSize], " "))
		}
	}
	return features
}

func significantLines(text string, max int) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ToLower(line))
		if line == "" {
			continue
		}
		line = hexAddressPattern.ReplaceAllString(line, "0x~")
		line = numberPattern.ReplaceAllString(line, "#")
		lines = append(lines, line)
		if len(lines) == max {
			break
		}
	}
	return lines
}
