// Package cryptoutils provides the cryptographic building blocks of the
// threshold access system: deriving a document key from a captured blink
// pattern and sealing documents under that key.
package cryptoutils

import (
	"crypto/sha256"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// DerivedKeyLength is the byte length of every blink-derived key.
const DerivedKeyLength = 32

// blinkKeyIterations stretches the blink pattern; the pattern has far less
// entropy than a random key.
const blinkKeyIterations = 1000

// BlinkEvent is one detected blink from the capture boundary. Times are in
// milliseconds; intensity is the detector's unitless eye-aspect-ratio drop.
type BlinkEvent struct {
	Timestamp       float64 `json:"timestamp"`
	Duration        float64 `json:"duration"`
	Intensity       float64 `json:"intensity"`
	EyeOpenInterval float64 `json:"eye_open_interval"`
}

// DeriveKeyFromBlinks folds a finite ordered sequence of blink events into
// a fixed-length document key. The derivation is deterministic: the same
// blink sequence always yields the same key.
func DeriveKeyFromBlinks(events []BlinkEvent) ([]byte, error) {
	if len(events) == 0 {
		return nil, errors.New("no blink data provided")
	}

	elements := make([]string, 0, len(events))
	intervals := make([]string, 0, len(events))
	for _, ev := range events {
		elements = append(elements, strings.Join([]string{
			formatFloat(ev.Timestamp),
			formatFloat(ev.Duration),
			formatFloat(ev.Intensity),
		}, "_"))
		intervals = append(intervals, formatFloat(ev.EyeOpenInterval))
	}
	pattern := strings.Join(elements, "|")

	// The eye-open intervals salt the stretch so that all four captured
	// dimensions contribute to the key.
	salt := sha256.Sum256([]byte("blink-pattern-salt:" + strings.Join(intervals, "|")))

	return pbkdf2.Key([]byte(pattern), salt[:], blinkKeyIterations, DerivedKeyLength, sha256.New), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
