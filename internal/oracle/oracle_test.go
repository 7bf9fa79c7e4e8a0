package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadflow/internal/config"
	"github.com/sells-group/leadflow/internal/resilience"
	"github.com/sells-group/leadflow/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func newTestOracle(client anthropic.Client) *anthropicOracle {
	o := newAnthropicOracle(client, config.OracleConfig{
		Model:       "claude-haiku-4-5-20251001",
		MaxAttempts: 1,
	})
	return o
}

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"preamble", "Here is the result:\n{\"a\":1}\nDone.", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanJSON(tc.in))
		})
	}
}

func TestAnthropicOracle_GenerateStructured(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"classification\": \"hot\", \"confidenceScore\": 0.85}\n```"), nil)

	o := newTestOracle(client)
	out, err := o.GenerateStructured(context.Background(), "classify", "responses")
	require.NoError(t, err)
	assert.Equal(t, "hot", out["classification"])
	assert.Equal(t, 0.85, out["confidenceScore"])
	client.AssertExpectations(t)
}

func TestAnthropicOracle_GenerateStructured_UnparseableOutput(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I can't produce JSON for that."), nil)

	o := newTestOracle(client)
	_, err := o.GenerateStructured(context.Background(), "classify", "responses")
	require.Error(t, err)
	assert.True(t, resilience.IsOracle(err))
}

func TestAnthropicOracle_GenerateStructured_APIError(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("authentication_error: invalid api key"))

	o := newTestOracle(client)
	_, err := o.GenerateStructured(context.Background(), "classify", "responses")
	require.Error(t, err)
	assert.True(t, resilience.IsOracle(err))
}

func TestAnthropicOracle_GenerateText(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 500 && len(req.System) == 1
	})).Return(textResponse("Hello lead"), nil)

	o := newTestOracle(client)
	text, err := o.GenerateText(context.Background(), "compose an email", "prompt", 500)
	require.NoError(t, err)
	assert.Equal(t, "Hello lead", text)
	client.AssertExpectations(t)
}

func TestAnthropicOracle_RetriesTransientErrors(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("anthropic: overloaded_error")).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("{\"ok\": true}"), nil).Once()

	o := newAnthropicOracle(client, config.OracleConfig{
		Model:       "claude-haiku-4-5-20251001",
		MaxAttempts: 2,
	})
	o.retry.InitialBackoff = 1 // effectively no sleep

	out, err := o.GenerateStructured(context.Background(), "classify", "responses")
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	client.AssertExpectations(t)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(config.OracleConfig{Backend: "mystic"})
	require.Error(t, err)
}

func TestNew_AnthropicRequiresKey(t *testing.T) {
	_, err := New(config.OracleConfig{Backend: "anthropic"})
	require.Error(t, err)
}

func TestHeuristic_HotSignals(t *testing.T) {
	o := NewHeuristic()
	out, err := o.GenerateStructured(context.Background(), "lead qualification", "We need this ASAP and have budget approved")
	require.NoError(t, err)
	assert.Equal(t, "hot", out["classification"])
	assert.Equal(t, 0.9, out["confidenceScore"])

	insights, ok := out["insights"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "high", insights["budget"])
	assert.Equal(t, "immediate", insights["urgency"])
}

func TestHeuristic_NoSignals(t *testing.T) {
	o := NewHeuristic()
	out, err := o.GenerateStructured(context.Background(), "lead qualification", "Just browsing your site")
	require.NoError(t, err)
	assert.Equal(t, "normal", out["classification"])
	assert.Equal(t, 0.4, out["confidenceScore"])
}

func TestHeuristic_Deterministic(t *testing.T) {
	o := NewHeuristic()
	first, err := o.GenerateStructured(context.Background(), "classify", "urgent timeline budget")
	require.NoError(t, err)
	second, err := o.GenerateStructured(context.Background(), "classify", "urgent timeline budget")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHeuristic_GenerateText_ToneVariants(t *testing.T) {
	o := NewHeuristic()

	hot, err := o.GenerateText(context.Background(), "email", "classification: hot", 0)
	require.NoError(t, err)
	assert.Contains(t, hot, "schedule")

	cold, err := o.GenerateText(context.Background(), "email", "classification: cold", 0)
	require.NoError(t, err)
	assert.Contains(t, cold, "resources")
}

func TestHeuristic_EmailGenerationPayload(t *testing.T) {
	o := NewHeuristic()
	system := `Respond with JSON: {"subject": "...", "body": "..."}` + "\nLead Classification: HOT"
	out, err := o.GenerateStructured(context.Background(), system, "- Classification: HOT\nGenerate a personalized email for this lead.")
	require.NoError(t, err)

	subject, ok := out["subject"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, subject)
	body, ok := out["body"].(string)
	require.True(t, ok)
	assert.Contains(t, body, "schedule")

	cold, err := o.GenerateStructured(context.Background(), `{"subject": "..."}`, "- Classification: COLD")
	require.NoError(t, err)
	assert.NotEqual(t, out["subject"], cold["subject"])
}
