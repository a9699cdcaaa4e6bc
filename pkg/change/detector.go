// Package change scores the delta between two content snapshots of the
// same target: score(prev, curr) -> (change_score, change_type).
//
// Canonicalization leans on masking.Service for volatile-section stripping
// ahead of comparison, and on SHA-256 for the stable hash of the canonical
// form.
package change

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/bits"
	"strings"

	"github.com/netassist/core/pkg/masking"
	"github.com/netassist/core/pkg/models"
)

// shingleLength is the token-window size for text similarity.
const shingleLength = 5

// Detector is the ChangeDetector.
type Detector struct {
	masker *masking.Service
}

// New constructs a Detector. masker may be nil to use the built-in strip
// rules.
func New(masker *masking.Service) *Detector {
	if masker == nil {
		masker = masking.NewService(nil)
	}
	return &Detector{masker: masker}
}

// Canonicalize reduces content to its comparison form,
// dispatching on contentType. The result for text/json kinds is the string
// later hashed/shingled; for image/octet-stream kinds it is a digest string
// suitable for direct hash-equality comparison.
func (d *Detector) Canonicalize(content []byte, contentType string) string {
	switch {
	case isTextualType(contentType):
		collapsed := strings.Join(strings.Fields(string(content)), " ")
		stripped := d.masker.Strip(strings.ToLower(collapsed))
		return stripped
	case strings.HasPrefix(contentType, "image/"):
		return fmt.Sprintf("%016x", perceptualDigest(content))
	default:
		return Hash(content)
	}
}

// Hash returns a stable hex digest of raw bytes, used both as
// ContentSnapshot.Hash and for the hash-equality fast path of scoring.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Score implements the ChangeDetector contract: given two snapshots of the
// same target, returns (change_score ∈ [0,1], change_type). Ties in
// threshold comparison are the caller's responsibility.
func (d *Detector) Score(prev, curr models.ContentSnapshot) (float64, models.ChangeType) {
	if prev.Hash != "" && curr.Hash != "" && prev.Hash == curr.Hash {
		return 0, models.ChangeContent
	}

	switch {
	case isTextualType(curr.ContentType):
		prevCanon := d.Canonicalize(prev.Content, prev.ContentType)
		currCanon := d.Canonicalize(curr.Content, curr.ContentType)
		if prevCanon == currCanon {
			return 0, models.ChangeContent
		}
		return jaccardDistance(shingles(prevCanon), shingles(currCanon)), models.ChangeContent

	case strings.HasPrefix(curr.ContentType, "image/"):
		prevHash := perceptualDigest(prev.Content)
		currHash := perceptualDigest(curr.Content)
		return normalizedHamming(prevHash, currHash), models.ChangeContent

	default:
		// application/octet-stream or unrecognized: raw bytes only get
		// the hash-equality fast path above. Differing raw bytes with no
		// structured comparison available score as a full content change.
		return 1.0, models.ChangeContent
	}
}

// ScoreStatusTransition reports the fixed score assigned to a
// service's online⇄offline transition, independent of content diffing.
func ScoreStatusTransition() (float64, models.ChangeType) {
	return 1.0, models.ChangeStatus
}

// ScoreMetadata compares two metadata maps (headers, open-port sets, …) and
// returns a score in [0, 0.5] proportional to the fraction of keys whose
// values differ.
func ScoreMetadata(prev, curr map[string]any) (float64, models.ChangeType) {
	keys := map[string]bool{}
	for k := range prev {
		keys[k] = true
	}
	for k := range curr {
		keys[k] = true
	}
	if len(keys) == 0 {
		return 0, models.ChangeMetadata
	}
	diff := 0
	for k := range keys {
		pv, pok := prev[k]
		cv, cok := curr[k]
		if pok != cok || fmt.Sprint(pv) != fmt.Sprint(cv) {
			diff++
		}
	}
	return 0.5 * float64(diff) / float64(len(keys)), models.ChangeMetadata
}

func isTextualType(contentType string) bool {
	return contentType == "text/html" || contentType == "application/json" ||
		strings.HasPrefix(contentType, "text/")
}

// shingles tokenizes canon into overlapping windows of shingleLength tokens.
func shingles(canon string) map[string]bool {
	tokens := strings.Fields(canon)
	set := map[string]bool{}
	if len(tokens) < shingleLength {
		if len(tokens) > 0 {
			set[strings.Join(tokens, " ")] = true
		}
		return set
	}
	for i := 0; i+shingleLength <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+shingleLength], " ")] = true
	}
	return set
}

// jaccardDistance computes 1 − |A∩B| / |A∪B| over two shingle sets.
func jaccardDistance(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for s := range a {
		if b[s] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return 1 - float64(inter)/float64(union)
}

// perceptualDigest computes a fixed 64-bit hash over a normalized
// low-resolution luminance matrix. Lacking an image codec in
// the dependency set, luminance is approximated by averaging raw byte
// values over 64 equal-sized blocks — a deterministic, codec-agnostic
// stand-in.
func perceptualDigest(content []byte) uint64 {
	if len(content) == 0 {
		return 0
	}
	const blocks = 64
	blockSize := (len(content) + blocks - 1) / blocks
	if blockSize == 0 {
		blockSize = 1
	}
	var sums [blocks]float64
	var total float64
	for i := 0; i < blocks; i++ {
		start := i * blockSize
		if start >= len(content) {
			break
		}
		end := start + blockSize
		if end > len(content) {
			end = len(content)
		}
		var sum float64
		for _, b := range content[start:end] {
			sum += float64(b)
		}
		avg := sum / float64(end-start)
		sums[i] = avg
		total += avg
	}
	mean := total / float64(blocks)

	var digest uint64
	for i, v := range sums {
		if v >= mean {
			digest |= 1 << uint(i)
		}
	}
	return digest
}

// normalizedHamming returns the fraction of differing bits between two
// 64-bit digests, in [0,1].
func normalizedHamming(a, b uint64) float64 {
	return float64(bits.OnesCount64(a^b)) / 64.0
}
