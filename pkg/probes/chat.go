package probes

import (
	"context"

	"github.com/netassist/core/pkg/models"
)

// fallbackReply is returned when no LLM is wired. It keeps the conversation
// alive rather than dead-ending an unroutable utterance.
const fallbackReply = "Nie rozumiem tego polecenia. Spróbuj np. \"ping 192.168.1.1\", \"skanuj sieć\" albo podaj adres URL."

// ChatProbe answers chat:ask and chat:fallback. With an LLM client it
// relays the question; without one it returns a canned hint listing the
// commands the engine does understand.
type ChatProbe struct {
	base
}

// NewChatProbe constructs the chat fallback plugin. Its priority is kept
// low so any concrete probe claiming the same utterance wins.
func NewChatProbe(priority int) *ChatProbe {
	return &ChatProbe{base: base{
		id:                "probe.chat",
		intents:           []models.Intent{models.IntentChatAsk, models.IntentChatFallback, models.IntentVoiceCommand},
		priority:          priority,
		browserCompatible: true,
	}}
}

func (p *ChatProbe) CanHandle(_ string, _ *models.PluginContext) bool { return true }

func (p *ChatProbe) Execute(ctx context.Context, text string, pctx *models.PluginContext) (*models.Result, error) {
	if pctx.Services.LLM == nil {
		return textResult(p.id, fallbackReply), nil
	}
	answer, err := pctx.Services.LLM.Summarize(ctx, text, 0)
	if err != nil {
		return nil, models.NewExecutionError(models.ClassUpstreamError, "llm request failed", err)
	}
	return textResult(p.id, answer), nil
}
