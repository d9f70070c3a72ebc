package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioagentlabs/bioagent/pkg/config"
	"github.com/bioagentlabs/bioagent/pkg/llms"
	"github.com/bioagentlabs/bioagent/pkg/tools"
)

// scriptedProvider replays canned responses and records requests.
type scriptedProvider struct {
	responses []*llms.Response
	requests  []llms.Request
}

func (p *scriptedProvider) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }

func toolUseResponse(blocks ...llms.ContentBlock) *llms.Response {
	return &llms.Response{
		Message:    llms.Message{Role: llms.RoleAssistant, Content: blocks},
		StopReason: llms.StopToolUse,
	}
}

func endTurnResponse(text string) *llms.Response {
	return &llms.Response{
		Message:    llms.TextMessage(llms.RoleAssistant, text),
		StopReason: llms.StopEndTurn,
	}
}

func toolCall(id, name string, input map[string]any) llms.ContentBlock {
	return llms.ContentBlock{Type: llms.BlockToolUse, ID: id, Name: name, Input: input}
}

func testConfig() *config.Config {
	return &config.Config{
		Model:         "test-model",
		MaxRounds:     10,
		MaxTokens:     1024,
		ParallelTools: true,
	}
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	err := reg.Register(tools.Spec{
		Name:        "echo",
		Description: "echoes its input",
		Params: map[string]tools.Param{
			"text": {Type: "string", Description: "text to echo", Required: true},
		},
	}, tools.HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
		return args["text"].(string), nil
	}))
	require.NoError(t, err)
	return reg
}

func TestRunToolRoundTrip(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{
		toolUseResponse(toolCall("call-1", "echo", map[string]any{"text": "hello"})),
		endTurnResponse("the echo returned: hello"),
	}}

	def, _ := SpecialistByID(SpecialistGeneral)
	a := New(def, provider, echoRegistry(t), nil, testConfig())

	result, err := a.Run(context.Background(), "echo hello", nil)
	require.NoError(t, err)

	assert.Equal(t, "the echo returned: hello", result.Text)
	assert.Equal(t, StoppedEndTurn, result.Stopped)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, []string{"echo"}, result.ToolsUsed)

	// Round 2 request carries the tool result as a user message.
	require.Len(t, provider.requests, 2)
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, llms.RoleUser, last.Role)
	require.Len(t, last.Content, 1)
	assert.Equal(t, llms.BlockToolResult, last.Content[0].Type)
	assert.Equal(t, "call-1", last.Content[0].ToolUseID)
	assert.Equal(t, "hello", last.Content[0].Content)
}

func TestRunParallelResultsInCallOrder(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{
		toolUseResponse(
			toolCall("call-a", "echo", map[string]any{"text": "first"}),
			toolCall("call-b", "echo", map[string]any{"text": "second"}),
			toolCall("call-c", "echo", map[string]any{"text": "third"}),
		),
		endTurnResponse("done"),
	}}

	def, _ := SpecialistByID(SpecialistGeneral)
	a := New(def, provider, echoRegistry(t), nil, testConfig())

	_, err := a.Run(context.Background(), "echo three things", nil)
	require.NoError(t, err)

	second := provider.requests[1]
	blocks := second.Messages[len(second.Messages)-1].Content
	require.Len(t, blocks, 3)
	assert.Equal(t, "first", blocks[0].Content)
	assert.Equal(t, "second", blocks[1].Content)
	assert.Equal(t, "third", blocks[2].Content)
}

func TestRunDuplicateInvocationID(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{
		toolUseResponse(
			toolCall("dup", "echo", map[string]any{"text": "one"}),
			toolCall("dup", "echo", map[string]any{"text": "two"}),
		),
		endTurnResponse("done"),
	}}

	def, _ := SpecialistByID(SpecialistGeneral)
	a := New(def, provider, echoRegistry(t), nil, testConfig())

	_, err := a.Run(context.Background(), "duplicate ids", nil)
	require.NoError(t, err)

	blocks := provider.requests[1].Messages[len(provider.requests[1].Messages)-1].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, "one", blocks[0].Content)
	assert.True(t, blocks[1].IsError)
	assert.Contains(t, blocks[1].Content, "duplicate")
}

func TestRunDisallowedTool(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{
		toolUseResponse(toolCall("call-1", "execute_code", map[string]any{"code": "rm -rf"})),
		endTurnResponse("done"),
	}}

	// The literature specialist has no execute_code in its allowlist.
	def, _ := SpecialistByID(SpecialistLiterature)
	a := New(def, provider, echoRegistry(t), nil, testConfig())

	_, err := a.Run(context.Background(), "run code", nil)
	require.NoError(t, err)

	blocks := provider.requests[1].Messages[len(provider.requests[1].Messages)-1].Content
	require.Len(t, blocks, 1)
	assert.True(t, blocks[0].IsError)
	assert.Contains(t, blocks[0].Content, "not available")
}

func TestRunMaxRoundsExhausted(t *testing.T) {
	// The model asks for a tool every round and never finishes.
	var responses []*llms.Response
	for i := 0; i < 3; i++ {
		responses = append(responses,
			toolUseResponse(toolCall(fmt.Sprintf("call-%d", i), "echo", map[string]any{"text": "again"})))
	}
	provider := &scriptedProvider{responses: responses}

	cfg := testConfig()
	cfg.MaxRounds = 3

	def, _ := SpecialistByID(SpecialistGeneral)
	a := New(def, provider, echoRegistry(t), nil, cfg)

	result, err := a.Run(context.Background(), "loop forever", nil)
	require.NoError(t, err)

	assert.Equal(t, StoppedMaxRounds, result.Stopped)
	assert.Equal(t, 3, result.Rounds)
	assert.Contains(t, result.Text, "maximum number of tool rounds")
}

func TestRunZeroRoundsReturnsImmediately(t *testing.T) {
	provider := &scriptedProvider{}
	cfg := testConfig()
	cfg.MaxRounds = 0

	def, _ := SpecialistByID(SpecialistGeneral)
	a := New(def, provider, echoRegistry(t), nil, cfg)

	result, err := a.Run(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, StoppedMaxRounds, result.Stopped)
	assert.Equal(t, maxRoundsNote, result.Text)
	assert.Empty(t, provider.requests)
}

func TestSpecialistRoster(t *testing.T) {
	roster := Specialists()
	require.NotEmpty(t, roster)

	// General is the fallback and must close the roster.
	assert.Equal(t, SpecialistGeneral, roster[len(roster)-1].ID)

	seen := map[string]bool{}
	for _, s := range roster {
		assert.False(t, seen[s.ID], "duplicate specialist id %s", s.ID)
		seen[s.ID] = true
		assert.NotEmpty(t, s.Prompt)
	}

	_, ok := SpecialistByID(SpecialistStats)
	assert.True(t, ok)
	_, ok = SpecialistByID("nope")
	assert.False(t, ok)
}
