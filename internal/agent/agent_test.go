package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/SLZMWLMJY/Legal-ai/internal/config"
	"github.com/SLZMWLMJY/Legal-ai/internal/conversation"
	"github.com/SLZMWLMJY/Legal-ai/internal/kvstore"
	"github.com/SLZMWLMJY/Legal-ai/internal/llm"
	"github.com/SLZMWLMJY/Legal-ai/internal/tools"
)

// fakeChatClient scripts ChatStream responses turn by turn.
type fakeChatClient struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	fragments []string
	toolCalls []llm.ToolCall
	err       error
}

func (c *fakeChatClient) Chat(ctx context.Context, messages []llm.Message, schemas []llm.Tool) (*llm.ChatResponse, error) {
	return c.ChatStream(ctx, messages, schemas, nil)
}

func (c *fakeChatClient) ChatStream(ctx context.Context, messages []llm.Message, schemas []llm.Tool, handler llm.StreamHandler) (*llm.ChatResponse, error) {
	if c.calls >= len(c.responses) {
		return &llm.ChatResponse{}, nil
	}
	resp := c.responses[c.calls]
	c.calls++

	if resp.err != nil {
		return nil, resp.err
	}

	var content strings.Builder
	for _, fragment := range resp.fragments {
		content.WriteString(fragment)
		if handler != nil {
			handler(fragment)
		}
	}
	return &llm.ChatResponse{Content: content.String(), ToolCalls: resp.toolCalls}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "摘要", nil
}

// echoTool records its invocation and returns a fixed result.
type echoTool struct {
	invoked bool
	args    map[string]any
}

func (t *echoTool) Name() string        { return "web_search" }
func (t *echoTool) Description() string { return "测试用搜索工具" }

func (t *echoTool) Parameters() []tools.ParameterDef {
	return []tools.ParameterDef{{Name: "query", Type: "string", Required: true}}
}

func (t *echoTool) Execute(args map[string]any) (string, error) {
	t.invoked = true
	t.args = args
	return "搜索结果：相关法条", nil
}

func testConfig() config.ContextConfig {
	return config.ContextConfig{
		MaxHistoryMessages:     10,
		SummaryUpdateThreshold: 5,
		ContextTokenLimit:      2000,
		SummaryTTLHours:        24,
		ProfileTTLDays:         7,
		MetadataTTLDays:        30,
		MetadataMaxRecords:     100,
		CounterCeiling:         100,
	}
}

func newTestOrchestrator(t *testing.T, client ChatClient, registry *tools.Registry) (*Orchestrator, *conversation.Store) {
	t.Helper()

	kv, err := kvstore.NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	cfg := testConfig()
	store := conversation.NewStore(kv, cfg)
	summaries := conversation.NewSummaryEngine(kv, store, fakeGenerator{}, cfg)
	profiles := conversation.NewProfileEngine(kv, store, fakeGenerator{}, cfg)
	assembler := conversation.NewAssembler(store, summaries, profiles)

	if registry == nil {
		registry = tools.NewRegistry()
	}

	return New(client, registry, store, summaries, profiles, assembler, cfg), store
}

func TestTurn_StreamsAndPersists(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{fragments: []string{"您好，", "这是法律咨询的回答。"}},
	}}
	orch, store := newTestOrchestrator(t, client, nil)

	var emitted []string
	full := orch.Turn(context.Background(), "u1", "劳动合同问题", func(fragment string) {
		emitted = append(emitted, fragment)
	}, nil)

	if full != "您好，这是法律咨询的回答。" {
		t.Errorf("Unexpected full response: '%s'", full)
	}
	if len(emitted) != 2 {
		t.Errorf("Expected 2 emitted fragments, got %d", len(emitted))
	}

	orch.Wait()

	messages, err := store.Read("u1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected persisted turn of 2 messages, got %d", len(messages))
	}
	if messages[0].Role != conversation.RoleUser || messages[0].Content != "劳动合同问题" {
		t.Errorf("Unexpected persisted user message: %+v", messages[0])
	}
	if messages[1].Role != conversation.RoleAssistant || messages[1].Content != full {
		t.Errorf("Unexpected persisted assistant message: %+v", messages[1])
	}

	records, err := store.ReadMetadata("u1")
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 metadata record, got %d", len(records))
	}
	// Length counts characters, not bytes
	wantLen := utf8.RuneCountInString(full)
	if records[0].AgentResponseLength != wantLen {
		t.Errorf("Expected response length %d, got %d", wantLen, records[0].AgentResponseLength)
	}
}

// droppingChat cancels the caller's context after the first fragment, the
// way a closed HTTP connection cancels the request context, and aborts if
// the cancellation reached its own context.
type droppingChat struct {
	cancel context.CancelFunc
}

func (c *droppingChat) Chat(ctx context.Context, messages []llm.Message, schemas []llm.Tool) (*llm.ChatResponse, error) {
	return c.ChatStream(ctx, messages, schemas, nil)
}

func (c *droppingChat) ChatStream(ctx context.Context, messages []llm.Message, schemas []llm.Tool, handler llm.StreamHandler) (*llm.ChatResponse, error) {
	if handler != nil {
		handler("第一部分，")
	}
	c.cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handler != nil {
		handler("第二部分。")
	}
	return &llm.ChatResponse{Content: "第一部分，第二部分。"}, nil
}

func TestTurn_ClientDisconnectDoesNotAbortInvocation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &droppingChat{cancel: cancel}
	orch, store := newTestOrchestrator(t, client, nil)

	full := orch.Turn(ctx, "u1", "问题", nil, nil)
	orch.Wait()

	if full != "第一部分，第二部分。" {
		t.Fatalf("Expected the invocation to finish past the disconnect, got '%s'", full)
	}

	messages, err := store.Read("u1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected buffered turn persisted after disconnect, got %d messages", len(messages))
	}
	if messages[1].Content != full {
		t.Errorf("Expected full response persisted, got '%s'", messages[1].Content)
	}
}

func TestTurn_ToolLoop(t *testing.T) {
	tool := &echoTool{}
	registry := tools.NewRegistry()
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	client := &fakeChatClient{responses: []fakeResponse{
		{toolCalls: []llm.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: llm.FunctionCall{
				Name:      "web_search",
				Arguments: `{"query":"劳动合同法"}`,
			},
		}}},
		{fragments: []string{"根据搜索结果，答案如下。"}},
	}}
	orch, _ := newTestOrchestrator(t, client, registry)

	var thinking []string
	full := orch.Turn(context.Background(), "u1", "请查一下劳动合同法", nil, func(event, payload string) {
		if event == "thinking" {
			thinking = append(thinking, payload)
		}
	})
	orch.Wait()

	if !tool.invoked {
		t.Fatal("Expected tool to be invoked")
	}
	if tool.args["query"] != "劳动合同法" {
		t.Errorf("Unexpected tool arguments: %v", tool.args)
	}
	if full != "根据搜索结果，答案如下。" {
		t.Errorf("Unexpected full response: '%s'", full)
	}
	if len(thinking) != 1 {
		t.Errorf("Expected 1 thinking event, got %d", len(thinking))
	}
	if client.calls != 2 {
		t.Errorf("Expected 2 model calls, got %d", client.calls)
	}
}

func TestTurn_UnknownToolReportedToModel(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{toolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: llm.FunctionCall{Name: "no_such_tool", Arguments: `{}`},
		}}},
		{fragments: []string{"好的。"}},
	}}
	orch, _ := newTestOrchestrator(t, client, nil)

	full := orch.Turn(context.Background(), "u1", "问题", nil, nil)
	orch.Wait()

	if full != "好的。" {
		t.Errorf("Expected turn to continue past unknown tool, got '%s'", full)
	}
}

func TestTurn_TimeoutApology(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{err: context.DeadlineExceeded},
	}}
	orch, store := newTestOrchestrator(t, client, nil)

	var emitted []string
	full := orch.Turn(context.Background(), "u1", "问题", func(fragment string) {
		emitted = append(emitted, fragment)
	}, nil)
	orch.Wait()

	if full != TimeoutApology {
		t.Errorf("Expected timeout apology, got '%s'", full)
	}
	if len(emitted) != 1 || emitted[0] != TimeoutApology {
		t.Errorf("Expected apology emitted, got %v", emitted)
	}

	messages, err := store.Read("u1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected nothing persisted after failed turn, got %d messages", len(messages))
	}
}

func TestTurn_ContextOverflowClearsHistory(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{err: errors.New("API error: context_length_exceeded")},
	}}
	orch, store := newTestOrchestrator(t, client, nil)

	if err := store.AppendTurn("u1", "旧问题", "旧回答"); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	full := orch.Turn(context.Background(), "u1", "新问题", nil, nil)
	orch.Wait()

	if full != OverflowApology {
		t.Errorf("Expected overflow apology, got '%s'", full)
	}

	messages, err := store.Read("u1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected history cleared after overflow, got %d messages", len(messages))
	}
}

func TestTurn_RateLimitApology(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{err: errors.New("API returned error (status 429): too many requests")},
	}}
	orch, _ := newTestOrchestrator(t, client, nil)

	full := orch.Turn(context.Background(), "u1", "问题", nil, nil)
	orch.Wait()

	if full != BusyApology {
		t.Errorf("Expected busy apology, got '%s'", full)
	}
}

func TestTurn_GenericApology(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{err: errors.New("connection refused")},
	}}
	orch, _ := newTestOrchestrator(t, client, nil)

	full := orch.Turn(context.Background(), "u1", "问题", nil, nil)
	orch.Wait()

	if full != GenericApology {
		t.Errorf("Expected generic apology, got '%s'", full)
	}
}

func TestBuildMessages(t *testing.T) {
	profile := conversation.DefaultProfile()
	bundle := &conversation.Context{
		History: []conversation.Message{
			{Role: conversation.RoleUser, Content: "之前的问题"},
			{Role: conversation.RoleAssistant, Content: "之前的回答"},
		},
		Summary: "早前对话摘要",
		Profile: &profile,
	}

	messages := buildMessages(bundle, "新问题")

	if len(messages) != 6 {
		t.Fatalf("Expected 6 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || !strings.Contains(messages[0].Content, "法律智能助手") {
		t.Errorf("Expected persona first, got %+v", messages[0])
	}
	if !strings.Contains(messages[1].Content, "早前对话摘要") {
		t.Errorf("Expected summary second, got %+v", messages[1])
	}
	if !strings.Contains(messages[2].Content, "用户画像") {
		t.Errorf("Expected profile third, got %+v", messages[2])
	}
	if messages[3].Content != "之前的问题" || messages[4].Content != "之前的回答" {
		t.Errorf("Expected history in order, got %+v %+v", messages[3], messages[4])
	}
	if messages[5].Role != "user" || messages[5].Content != "新问题" {
		t.Errorf("Expected input last, got %+v", messages[5])
	}
}

func TestBuildMessages_NoSummaryNoProfile(t *testing.T) {
	bundle := &conversation.Context{}

	messages := buildMessages(bundle, "问题")
	if len(messages) != 2 {
		t.Fatalf("Expected persona and input only, got %d messages", len(messages))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("短文本", 100); got != "短文本" {
		t.Errorf("Expected unchanged text, got '%s'", got)
	}
	if got := truncate("一二三四五", 3); got != "一二三" {
		t.Errorf("Expected rune-safe cut, got '%s'", got)
	}
}
