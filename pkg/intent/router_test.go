package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netassist/core/pkg/models"
)

type fakeConfig struct{ useClassifier bool }

func (f fakeConfig) GetBool(key string, fallback bool) bool {
	if key == "llm.use_classifier" {
		return f.useClassifier
	}
	return fallback
}

func TestClassifyPingExtractsIP(t *testing.T) {
	r := New(fakeConfig{}, nil, nil)
	c := r.Classify(context.Background(), models.Utterance{Text: "ping 192.168.1.1"})

	assert.Equal(t, models.IntentNetworkPing, c.Intent)
	assert.Equal(t, "192.168.1.1", c.Entities[models.EntityIP])
	assert.GreaterOrEqual(t, c.Confidence, 0.6)
}

func TestClassifyDiscardsBroadcastAndNetworkAddresses(t *testing.T) {
	r := New(fakeConfig{}, nil, nil)
	c := r.Classify(context.Background(), models.Utterance{Text: "ping 10.0.0.255 then try 10.0.0.7"})
	assert.Equal(t, "10.0.0.7", c.Entities[models.EntityIP])
}

func TestClassifyURLRoutesToBrowse(t *testing.T) {
	r := New(fakeConfig{}, nil, nil)
	c := r.Classify(context.Background(), models.Utterance{Text: "open https://example.com/status"})
	assert.Equal(t, models.IntentBrowseURL, c.Intent)
	assert.Equal(t, "https://example.com/status", c.Entities[models.EntityURL])
}

func TestClassifyNoMatchFallsBackToChatFallback(t *testing.T) {
	r := New(fakeConfig{}, nil, nil)
	c := r.Classify(context.Background(), models.Utterance{Text: "xyzzy plugh"})
	assert.Equal(t, models.IntentChatFallback, c.Intent)
}

func TestClassifyDeterministic(t *testing.T) {
	r := New(fakeConfig{}, nil, nil)
	u := models.Utterance{Text: "skanuj porty 192.168.1.5"}
	first := r.Classify(context.Background(), u)
	second := r.Classify(context.Background(), u)
	assert.Equal(t, first, second)
}

type stubClassifier struct {
	result models.Classification
	err    error
	delay  time.Duration
}

func (s stubClassifier) Classify(ctx context.Context, text string, intents []models.Intent, hints map[string][]string) (models.Classification, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return models.Classification{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func TestClassifyStage2OverridesLowConfidenceStage1(t *testing.T) {
	classifier := stubClassifier{result: models.Classification{Intent: models.IntentChatAsk, Confidence: 0.95}}
	r := New(fakeConfig{useClassifier: true}, classifier, nil)

	c := r.Classify(context.Background(), models.Utterance{Text: "tell me something"})
	assert.Equal(t, models.IntentChatAsk, c.Intent)
}

func TestClassifyStage2TimeoutFallsBackToStage1(t *testing.T) {
	classifier := stubClassifier{delay: 3 * time.Second}
	r := New(fakeConfig{useClassifier: true}, classifier, nil)

	c := r.Classify(context.Background(), models.Utterance{Text: "ping 192.168.1.9"})
	require.Equal(t, models.IntentNetworkPing, c.Intent)
}

func TestClassifyHighConfidenceStage1SkipsClassifier(t *testing.T) {
	called := false
	classifier := stubClassifierFunc(func(ctx context.Context, text string, intents []models.Intent, hints map[string][]string) (models.Classification, error) {
		called = true
		return models.Classification{Intent: models.IntentChatAsk, Confidence: 0.9}, nil
	})
	r := New(fakeConfig{useClassifier: true}, classifier, nil)

	c := r.Classify(context.Background(), models.Utterance{Text: "ping 192.168.1.9"})
	assert.Equal(t, models.IntentNetworkPing, c.Intent)
	assert.False(t, called, "classifier must not run when stage 1 confidence already clears the gate")
}

type stubClassifierFunc func(ctx context.Context, text string, intents []models.Intent, hints map[string][]string) (models.Classification, error)

func (f stubClassifierFunc) Classify(ctx context.Context, text string, intents []models.Intent, hints map[string][]string) (models.Classification, error) {
	return f(ctx, text, intents, hints)
}
