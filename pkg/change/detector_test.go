package change

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netassist/core/pkg/models"
)

func snap(content, contentType string) models.ContentSnapshot {
	return models.ContentSnapshot{
		Content:     []byte(content),
		ContentType: contentType,
		Hash:        Hash([]byte(content)),
	}
}

func TestScoreHashEqualityIsZero(t *testing.T) {
	d := New(nil)
	s := snap(`{"device_count": 4}`, "application/json")
	score, kind := d.Score(s, s)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, models.ChangeContent, kind)
}

func TestScoreIgnoresVolatileTimestamp(t *testing.T) {
	d := New(nil)
	prev := snap(`{"status":"ok","captured_at":"2026-07-29T10:00:00Z","device_count":4}`, "application/json")
	curr := snap(`{"status":"ok","captured_at":"2026-07-29T10:05:00Z","device_count":4}`, "application/json")

	score, kind := d.Score(prev, curr)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, models.ChangeContent, kind)
}

func TestScoreSubstantiveTextChangeIsNonzero(t *testing.T) {
	d := New(nil)
	prev := snap("the quick brown fox jumps over the lazy dog today", "text/html")
	curr := snap("a slow red hen walks under the sleepy cat tonight", "text/html")

	score, kind := d.Score(prev, curr)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	assert.Equal(t, models.ChangeContent, kind)
}

func TestScoreSmallTextEditIsSmallDistance(t *testing.T) {
	d := New(nil)
	prev := snap("device list shows four online hosts on the local subnet right now and all of them answered the last ping sweep without any packet loss", "text/html")
	curr := snap("device list shows five online hosts on the local subnet right now and all of them answered the last ping sweep without any packet loss", "text/html")

	score, _ := d.Score(prev, curr)
	assert.Less(t, score, 0.5)
}

func TestScoreImageIdenticalContentIsZero(t *testing.T) {
	d := New(nil)
	content := make([]byte, 256)
	for i := range content {
		content[i] = byte(i)
	}
	prev := models.ContentSnapshot{Content: content, ContentType: "image/jpeg", Hash: Hash(content)}
	curr := prev

	score, kind := d.Score(prev, curr)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, models.ChangeContent, kind)
}

func TestScoreImageDifferingContentIsNonzero(t *testing.T) {
	d := New(nil)
	a := make([]byte, 256)
	b := make([]byte, 256)
	for i := range a {
		a[i] = byte(i)
		b[i] = byte(255 - i)
	}
	prev := models.ContentSnapshot{Content: a, ContentType: "image/jpeg", Hash: Hash(a)}
	curr := models.ContentSnapshot{Content: b, ContentType: "image/jpeg", Hash: Hash(b)}

	score, kind := d.Score(prev, curr)
	assert.Greater(t, score, 0.0)
	assert.Equal(t, models.ChangeContent, kind)
}

func TestScoreOctetStreamDifferingIsFullChange(t *testing.T) {
	d := New(nil)
	prev := models.ContentSnapshot{Content: []byte{1, 2, 3}, ContentType: "application/octet-stream", Hash: Hash([]byte{1, 2, 3})}
	curr := models.ContentSnapshot{Content: []byte{9, 9, 9}, ContentType: "application/octet-stream", Hash: Hash([]byte{9, 9, 9})}

	score, kind := d.Score(prev, curr)
	assert.Equal(t, 1.0, score)
	assert.Equal(t, models.ChangeContent, kind)
}

func TestScoreStatusTransitionIsFixed(t *testing.T) {
	score, kind := ScoreStatusTransition()
	assert.Equal(t, 1.0, score)
	assert.Equal(t, models.ChangeStatus, kind)
}

func TestScoreMetadataWithinBounds(t *testing.T) {
	prev := map[string]any{"open_ports": "80,443", "server": "nginx"}
	curr := map[string]any{"open_ports": "80,443,8080", "server": "nginx"}

	score, kind := ScoreMetadata(prev, curr)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 0.5)
	assert.Equal(t, models.ChangeMetadata, kind)
}

func TestScoreMetadataIdenticalIsZero(t *testing.T) {
	meta := map[string]any{"open_ports": "80,443"}
	score, _ := ScoreMetadata(meta, meta)
	assert.Equal(t, 0.0, score)
}
