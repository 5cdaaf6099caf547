package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xiaot623/supportdesk/internal/tools"
)

func drain(s *Stream) string {
	var sb strings.Builder
	for d := range s.Deltas() {
		sb.WriteString(d)
	}
	return sb.String()
}

func TestStreamMatchesExecute(t *testing.T) {
	defer goleak.VerifyNone(t)

	scripts := map[string][]llmMsg{
		"plain reply": {say("Happy to help with that!")},
		"empty reply": {say("")},
		"tool then reply": {
			{Role: "assistant", Content: "Let me check. ", ToolCalls: []llmCall{call("c1", tools.FetchOrderDetails, `{"orderNumber":"ORD-9283"}`)}},
			say("Your order ORD-9283 arrives tomorrow by 8 PM."),
		},
		"budget exhausted": {toolCall("c1", tools.CheckDeliveryStatus, `{"orderNumber":"ORD-3120"}`)},
	}

	for name, script := range scripts {
		t.Run(name, func(t *testing.T) {
			plain := newTestEngine(&scriptedLLM{replies: script}, newMemStore()).
				Execute(context.Background(), orderRequest("ORD-9283"))

			s := newTestEngine(&scriptedLLM{replies: script}, newMemStore()).
				ExecuteStream(context.Background(), orderRequest("ORD-9283"))
			streamed := drain(s)
			res, err := s.Result()
			require.NoError(t, err)
			assert.Equal(t, StateDone, s.State())

			if diff := cmp.Diff(plain, *res); diff != "" {
				t.Fatalf("stream result differs from Execute (-execute +stream):\n%s", diff)
			}

			var all strings.Builder
			for _, step := range res.Steps {
				all.WriteString(step.Text)
			}
			assert.Equal(t, all.String(), streamed)
		})
	}
}

func TestStreamSurfacesModelError(t *testing.T) {
	defer goleak.VerifyNone(t)

	model := &scriptedLLM{
		replies: []llmMsg{{Role: "assistant", Content: "Checking", ToolCalls: []llmCall{call("c1", tools.FetchOrderDetails, `{"orderNumber":"ORD-9283"}`)}}},
		err:     errors.New("upstream reset"),
		failAt:  2,
	}
	s := newTestEngine(model, newMemStore()).ExecuteStream(context.Background(), orderRequest("ORD-9283"))

	// Deltas already sent are not retracted.
	assert.Equal(t, "Checking", drain(s))
	res, err := s.Result()
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "upstream reset")
	assert.Equal(t, StateErrored, s.State())
}

func TestStreamStopsWhenConsumerCancels(t *testing.T) {
	defer goleak.VerifyNone(t)

	model := &scriptedLLM{replies: []llmMsg{say(strings.Repeat("long reply ", 20))}}
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestEngine(model, newMemStore()).ExecuteStream(ctx, orderRequest("hi"))

	first, ok := <-s.Deltas()
	require.True(t, ok)
	assert.NotEmpty(t, first)
	cancel()

	res, err := s.Result()
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	_, open := <-s.Deltas()
	assert.False(t, open)
}

func TestStreamStateString(t *testing.T) {
	assert.Equal(t, "awaiting-classification", StateAwaitingClassification.String())
	assert.Equal(t, "streaming-text", StateStreamingText.String())
	assert.Equal(t, "awaiting-final", StateAwaitingFinal.String())
	assert.Equal(t, "errored", StateErrored.String())
}
