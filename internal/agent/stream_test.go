package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

func collectEvents(t *testing.T, events <-chan *StreamEvent) []*StreamEvent {
	t.Helper()
	var out []*StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close, collected %d events", len(out))
		}
	}
}

func eventKinds(events []*StreamEvent) []string {
	kinds := make([]string, len(events))
	for i, ev := range events {
		switch {
		case ev.Err != nil:
			kinds[i] = "error"
		case ev.Final != nil:
			kinds[i] = "final"
		case ev.ToolResult != nil:
			kinds[i] = "tool_result"
		default:
			kinds[i] = "text"
		}
	}
	return kinds
}

func streamScript() []*Completion {
	return []*Completion{
		{
			Content:    "Checking",
			ToolCalls:  []models.ToolCall{toolCall("call-a", "probe", `{"n":1}`)},
			StopReason: StopToolUse,
			Usage:      Usage{InputTokens: 10, OutputTokens: 5},
		},
		{Content: "Done", StopReason: StopEndTurn, Usage: Usage{InputTokens: 20, OutputTokens: 3}},
	}
}

func probeTool() *mockTool {
	return &mockTool{name: "probe", description: "probes", risk: models.RiskReadOnly, execFunc: func(context.Context, json.RawMessage) (string, error) {
		return "probed", nil
	}}
}

func TestProcessMessageStreamEventOrder(t *testing.T) {
	provider := &scriptedProvider{rounds: streamScript()}
	runtime := newTestRuntime(t, provider, newTestPermissions(t, models.ModeAuto), nil, probeTool())
	convo := &models.ConversationContext{SessionID: "session-1"}

	events, err := runtime.ProcessMessageStream(context.Background(), convo, "check")
	if err != nil {
		t.Fatalf("ProcessMessageStream() error = %v", err)
	}

	collected := collectEvents(t, events)
	kinds := eventKinds(collected)
	want := []string{"text", "text", "tool_result", "text", "text", "final"}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}

	var streamed strings.Builder
	for _, ev := range collected {
		streamed.WriteString(ev.Text)
	}
	if streamed.String() != "CheckingDone" {
		t.Errorf("streamed text = %q, want %q", streamed.String(), "CheckingDone")
	}

	result := collected[2].ToolResult
	if result.ToolCallID != "call-a" || !result.Success || result.Output != "probed" {
		t.Errorf("tool result event = %+v, want successful call-a", result)
	}

	final := collected[len(collected)-1].Final
	if final.Content != "Done" {
		t.Errorf("Final.Content = %q, want %q", final.Content, "Done")
	}
	if final.Iterations != 2 {
		t.Errorf("Final.Iterations = %d, want 2", final.Iterations)
	}
	if final.Usage.InputTokens != 30 || final.Usage.OutputTokens != 8 {
		t.Errorf("Final.Usage = %+v, want accumulated {30 8}", final.Usage)
	}
	if len(final.ToolResults) != 1 || final.ToolResults[0].ToolCallID != "call-a" {
		t.Errorf("Final.ToolResults = %+v, want the probe result", final.ToolResults)
	}
}

func TestProcessMessageStreamMatchesProcessMessage(t *testing.T) {
	syncProvider := &scriptedProvider{rounds: streamScript()}
	streamProvider := &scriptedProvider{rounds: streamScript()}

	syncRuntime := newTestRuntime(t, syncProvider, newTestPermissions(t, models.ModeAuto), nil, probeTool())
	streamRuntime := newTestRuntime(t, streamProvider, newTestPermissions(t, models.ModeAuto), nil, probeTool())

	syncConvo := &models.ConversationContext{SessionID: "session-1"}
	streamConvo := &models.ConversationContext{SessionID: "session-1"}

	syncResp, err := syncRuntime.ProcessMessage(context.Background(), syncConvo, "check")
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}

	events, err := streamRuntime.ProcessMessageStream(context.Background(), streamConvo, "check")
	if err != nil {
		t.Fatalf("ProcessMessageStream() error = %v", err)
	}
	var streamResp *Response
	for _, ev := range collectEvents(t, events) {
		if ev.Final != nil {
			streamResp = ev.Final
		}
	}
	if streamResp == nil {
		t.Fatal("stream produced no final response")
	}

	if streamResp.Content != syncResp.Content {
		t.Errorf("stream Content = %q, sync Content = %q", streamResp.Content, syncResp.Content)
	}
	if streamResp.Iterations != syncResp.Iterations {
		t.Errorf("stream Iterations = %d, sync Iterations = %d", streamResp.Iterations, syncResp.Iterations)
	}
	if streamResp.Usage != syncResp.Usage {
		t.Errorf("stream Usage = %+v, sync Usage = %+v", streamResp.Usage, syncResp.Usage)
	}
	if len(streamResp.ToolResults) != len(syncResp.ToolResults) {
		t.Fatalf("stream results = %d, sync results = %d", len(streamResp.ToolResults), len(syncResp.ToolResults))
	}
	for i := range streamResp.ToolResults {
		if streamResp.ToolResults[i].ToolCallID != syncResp.ToolResults[i].ToolCallID {
			t.Errorf("result[%d] id = %q, sync id = %q", i, streamResp.ToolResults[i].ToolCallID, syncResp.ToolResults[i].ToolCallID)
		}
		if streamResp.ToolResults[i].Success != syncResp.ToolResults[i].Success {
			t.Errorf("result[%d] success mismatch", i)
		}
	}

	if fmt.Sprint(roles(streamConvo.Messages)) != fmt.Sprint(roles(syncConvo.Messages)) {
		t.Errorf("stream transcript roles = %v, sync roles = %v",
			roles(streamConvo.Messages), roles(syncConvo.Messages))
	}
}

func TestProcessMessageStreamProviderError(t *testing.T) {
	provider := &scriptedProvider{errAt: map[int]error{0: errors.New("rate limited")}}
	runtime := newTestRuntime(t, provider, newTestPermissions(t, models.ModeAuto), nil)
	convo := &models.ConversationContext{SessionID: "session-1"}

	events, err := runtime.ProcessMessageStream(context.Background(), convo, "hello")
	if err != nil {
		t.Fatalf("ProcessMessageStream() error = %v", err)
	}

	collected := collectEvents(t, events)
	if len(collected) != 1 {
		t.Fatalf("got %d events, want a single error event", len(collected))
	}
	if collected[0].Err == nil || !strings.Contains(collected[0].Err.Error(), "rate limited") {
		t.Errorf("Err = %v, want the provider failure", collected[0].Err)
	}
}

// tearingProvider streams some text and then fails mid-stream.
type tearingProvider struct{}

func (tearingProvider) Name() string { return "tearing" }

func (tearingProvider) Generate(context.Context, *CompletionRequest) (*Completion, error) {
	return nil, errors.New("generate not supported")
}

func (tearingProvider) Stream(context.Context, *CompletionRequest) (<-chan *CompletionChunk, error) {
	ch := make(chan *CompletionChunk, 2)
	ch <- &CompletionChunk{Text: "partial"}
	ch <- &CompletionChunk{Error: errors.New("connection reset")}
	close(ch)
	return ch, nil
}

func TestProcessMessageStreamMidStreamError(t *testing.T) {
	runtime := newTestRuntime(t, tearingProvider{}, newTestPermissions(t, models.ModeAuto), nil)
	convo := &models.ConversationContext{SessionID: "session-1"}

	events, err := runtime.ProcessMessageStream(context.Background(), convo, "hello")
	if err != nil {
		t.Fatalf("ProcessMessageStream() error = %v", err)
	}

	collected := collectEvents(t, events)
	kinds := eventKinds(collected)
	want := []string{"text", "error"}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	if collected[0].Text != "partial" {
		t.Errorf("Text = %q, want the delta emitted before the failure", collected[0].Text)
	}
	if !strings.Contains(collected[1].Err.Error(), "connection reset") {
		t.Errorf("Err = %v, want the mid-stream failure", collected[1].Err)
	}
}

// hangingProvider emits one delta and then never closes its channel.
type hangingProvider struct {
	started chan struct{}
}

func (p *hangingProvider) Name() string { return "hanging" }

func (p *hangingProvider) Generate(context.Context, *CompletionRequest) (*Completion, error) {
	return nil, errors.New("generate not supported")
}

func (p *hangingProvider) Stream(context.Context, *CompletionRequest) (<-chan *CompletionChunk, error) {
	ch := make(chan *CompletionChunk, 1)
	ch <- &CompletionChunk{Text: "partial"}
	close(p.started)
	return ch, nil
}

func TestProcessMessageStreamCancellation(t *testing.T) {
	provider := &hangingProvider{started: make(chan struct{})}
	runtime := newTestRuntime(t, provider, newTestPermissions(t, models.ModeAuto), nil)
	convo := &models.ConversationContext{SessionID: "session-1"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := runtime.ProcessMessageStream(ctx, convo, "hello")
	if err != nil {
		t.Fatalf("ProcessMessageStream() error = %v", err)
	}

	go func() {
		<-provider.started
		cancel()
	}()

	collected := collectEvents(t, events)
	if len(collected) == 0 {
		t.Fatal("expected at least an error event")
	}
	last := collected[len(collected)-1]
	if !errors.Is(last.Err, context.Canceled) {
		t.Errorf("last event Err = %v, want context.Canceled", last.Err)
	}
	for _, ev := range collected {
		if ev.Final != nil {
			t.Error("cancelled stream produced a final response")
		}
	}
}

func TestProcessMessageStreamMaxIterations(t *testing.T) {
	rounds := make([]*Completion, 4)
	for i := range rounds {
		rounds[i] = &Completion{
			ToolCalls:  []models.ToolCall{toolCall(fmt.Sprintf("call-%d", i), "probe", `{}`)},
			StopReason: StopToolUse,
		}
	}
	provider := &scriptedProvider{rounds: rounds}

	logger := quietLogger()
	registry := NewRegistry(RegistryConfig{Logger: logger})
	if err := registry.Register(probeTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	opts := DefaultRuntimeOptions()
	opts.MaxIterations = 2
	opts.Logger = logger
	runtime := NewRuntime(provider, registry, newTestPermissions(t, models.ModeAuto), &opts)
	convo := &models.ConversationContext{SessionID: "session-1"}

	events, err := runtime.ProcessMessageStream(context.Background(), convo, "never stop")
	if err != nil {
		t.Fatalf("ProcessMessageStream() error = %v", err)
	}

	collected := collectEvents(t, events)
	last := collected[len(collected)-1]
	if !errors.Is(last.Err, ErrMaxIterations) {
		t.Fatalf("last event Err = %v, want ErrMaxIterations", last.Err)
	}

	results := 0
	for _, ev := range collected {
		if ev.ToolResult != nil {
			results++
		}
	}
	if results != 2 {
		t.Errorf("tool result events = %d, want one per iteration", results)
	}
}

func TestProcessMessageStreamNilGuards(t *testing.T) {
	runtime := newTestRuntime(t, nil, newTestPermissions(t, models.ModeAuto), nil)
	if _, err := runtime.ProcessMessageStream(context.Background(), &models.ConversationContext{}, "hi"); !errors.Is(err, ErrNoProvider) {
		t.Errorf("ProcessMessageStream without provider error = %v, want ErrNoProvider", err)
	}

	runtime = newTestRuntime(t, &scriptedProvider{}, newTestPermissions(t, models.ModeAuto), nil)
	if _, err := runtime.ProcessMessageStream(context.Background(), nil, "hi"); err == nil {
		t.Error("ProcessMessageStream with nil conversation error = nil, want error")
	}
}
