// Package fingerprint computes content digests and text similarity scores.
//
// Hash is a SHA-256 digest of the raw body and is the only thing used to
// decide whether content changed. Similarity is a normalized edit-distance
// score in [0,1] that tells how much it changed.
//
// Exact edit distance costs O(|a|*|b|) time. Texts longer than MaxExactRunes
// are compared with a sampled estimator instead; see Similarity.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/lexcrawl/internal/model"
)

const (
	// MaxExactRunes is the longest text, in runes, compared with exact edit distance.
	MaxExactRunes = 20000

	// sampleWindows is the number of windows the estimator compares.
	sampleWindows = 16

	// sampleWindowRunes is the size of each compared window.
	sampleWindowRunes = 512

	// textSampleRunes is the length of Fingerprint.TextSample.
	textSampleRunes = 120
)

// belowOne is the highest score given to texts that are not identical.
var belowOne = math.Nextafter(1, 0)

// Hash returns the SHA-256 digest of body. Identical bytes always yield
// identical digests.
func Hash(body []byte) [32]byte {
	return sha256.Sum256(body)
}

// HashHex returns the hex-encoded SHA-256 digest of body.
func HashHex(body []byte) string {
	sum := Hash(body)
	return hex.EncodeToString(sum[:])
}

// New builds the fingerprint of a fetched body and its extracted text.
func New(body []byte, text string) model.Fingerprint {
	return model.Fingerprint{
		ContentHash: Hash(body),
		Length:      len(body),
		TextSample:  sample(Normalize(text), textSampleRunes),
	}
}

// Normalize prepares text for comparison: Unicode NFC composition and
// collapsing of every whitespace run into a single space.
func Normalize(text string) string {
	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Similarity returns 1 - editDistance(a, b) / max(len(a), len(b)) over the
// normalized texts, measured in runes. Two empty texts are identical (1.0).
// The result is symmetric and always within [0,1]. Only identical texts
// score 1.0: texts that differ in whitespace or Unicode composition alone,
// or whose differences fall outside the sampled windows, score just below.
//
// When either text exceeds MaxExactRunes the score is estimated: both texts
// are cut into the same number of evenly spaced windows, windows at the same
// relative position are compared exactly, and the mean window score is
// scaled by the ratio of the text lengths. Identical texts still score 1.0
// and unrelated texts still score close to 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}

	a, b = Normalize(a), Normalize(b)
	if a == b {
		return belowOne
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) > MaxExactRunes || len(rb) > MaxExactRunes {
		return min(clamp(sampledSimilarity(ra, rb)), belowOne)
	}

	return min(clamp(exactSimilarity(a, b, max(len(ra), len(rb)))), belowOne)
}

// exactSimilarity computes the normalized edit distance of a and b.
// longest is max(runeLen(a), runeLen(b)).
func exactSimilarity(a, b string, longest int) float64 {
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// sampledSimilarity estimates the similarity of two long texts.
func sampledSimilarity(a, b []rune) float64 {
	shortest, longest := min(len(a), len(b)), max(len(a), len(b))
	if shortest == 0 {
		return 0
	}

	var total float64
	for i := 0; i < sampleWindows; i++ {
		wa := window(a, i)
		wb := window(b, i)
		total += exactSimilarity(string(wa), string(wb), max(len(wa), len(wb)))
	}

	return (total / sampleWindows) * (float64(shortest) / float64(longest))
}

// window returns the i-th of sampleWindows evenly spaced windows of text.
func window(text []rune, i int) []rune {
	size := min(sampleWindowRunes, len(text))
	span := len(text) - size
	start := 0
	if sampleWindows > 1 {
		start = span * i / (sampleWindows - 1)
	}
	return text[start : start+size]
}

// sample returns the first n runes of text.
func sample(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
