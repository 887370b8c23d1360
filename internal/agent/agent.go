// Package agent drives one end-to-end conversation turn: context assembly,
// model invocation with tool calling, fragment streaming, and detached
// post-turn maintenance (persistence, profile usage, summary cadence).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/SLZMWLMJY/Legal-ai/internal/config"
	"github.com/SLZMWLMJY/Legal-ai/internal/conversation"
	"github.com/SLZMWLMJY/Legal-ai/internal/llm"
	"github.com/SLZMWLMJY/Legal-ai/internal/logger"
	"github.com/SLZMWLMJY/Legal-ai/internal/tools"
)

const (
	// MaxToolIterations bounds the tool-calling loop within one turn
	MaxToolIterations = 5

	// backgroundTaskTimeout bounds detached post-turn work
	backgroundTaskTimeout = 60 * time.Second
)

// User-visible substitutes for a failed turn. A failure before streaming
// completes replaces the entire response with one of these.
const (
	TimeoutApology  = "抱歉，思考时间过长，请简化您的问题重试。"
	BusyApology     = "服务繁忙，请稍后重试"
	OverflowApology = "对话历史过长，已开启新会话"
	GenericApology  = "对话失败，请稍后再试"
)

// turnState tracks the turn lifecycle for logging.
type turnState int

const (
	stateAssembling turnState = iota
	stateInvoking
	stateStreaming
	stateFinalizing
	stateDone
	stateError
)

func (s turnState) String() string {
	switch s {
	case stateAssembling:
		return "ASSEMBLING"
	case stateInvoking:
		return "INVOKING"
	case stateStreaming:
		return "STREAMING"
	case stateFinalizing:
		return "FINALIZING"
	case stateDone:
		return "DONE"
	default:
		return "ERROR"
	}
}

// ChatClient is the model invocation boundary. Satisfied by *llm.Client.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.ChatResponse, error)
	ChatStream(ctx context.Context, messages []llm.Message, tools []llm.Tool, handler llm.StreamHandler) (*llm.ChatResponse, error)
}

// Observer receives auxiliary turn events: "token" for streamed fragments
// and "thinking" for intermediate tool-call traces.
type Observer func(event, payload string)

// ToolCallRecord is one entry of a turn's tool-call trace.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// Orchestrator runs conversation turns.
type Orchestrator struct {
	llm       ChatClient
	registry  *tools.Registry
	store     *conversation.Store
	summaries *conversation.SummaryEngine
	profiles  *conversation.ProfileEngine
	assembler *conversation.Assembler
	cfg       config.ContextConfig

	bg sync.WaitGroup
}

// New creates an orchestrator.
func New(
	client ChatClient,
	registry *tools.Registry,
	store *conversation.Store,
	summaries *conversation.SummaryEngine,
	profiles *conversation.ProfileEngine,
	assembler *conversation.Assembler,
	cfg config.ContextConfig,
) *Orchestrator {
	return &Orchestrator{
		llm:       client,
		registry:  registry,
		store:     store,
		summaries: summaries,
		profiles:  profiles,
		assembler: assembler,
		cfg:       cfg,
	}
}

// Turn runs one conversation turn. Each response fragment is passed to emit
// as it arrives; the full response text is returned once the turn finishes.
// Failures never propagate: the returned text is then one of the apology
// messages, which has also been emitted.
//
// Persistence and summary maintenance are detached: they are scheduled at
// FINALIZING and not awaited, so they may outlive the caller's request.
func (o *Orchestrator) Turn(ctx context.Context, accountID, input string, emit func(string), observe Observer) string {
	state := stateAssembling
	logger.Debug("turn %s: account=%s", state, accountID)

	bundle, err := o.assembler.Assemble(ctx, accountID, conversation.StrategyHybrid, o.cfg.ContextTokenLimit)
	if err != nil {
		return o.fail(accountID, state, err, emit)
	}

	messages := buildMessages(bundle, input)
	schemas := o.registry.Schemas()

	state = stateInvoking
	logger.Debug("turn %s: account=%s", state, accountID)

	var buf strings.Builder
	handler := func(fragment string) {
		buf.WriteString(fragment)
		if emit != nil {
			emit(fragment)
		}
		if observe != nil {
			observe("token", fragment)
		}
	}

	var trace []ToolCallRecord

	// The model call is detached from the caller's cancellation: a client
	// dropping mid-stream must not abort the invocation, and the buffered
	// response is still persisted. The HTTP client's own timeout bounds
	// the call.
	modelCtx := context.WithoutCancel(ctx)

	for i := 0; i < MaxToolIterations; i++ {
		resp, err := o.llm.ChatStream(modelCtx, messages, schemas, handler)
		if err != nil {
			return o.fail(accountID, state, err, emit)
		}
		state = stateStreaming

		if len(resp.ToolCalls) == 0 {
			break
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := o.executeTool(call)
			trace = append(trace, ToolCallRecord{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
				Result:    result,
			})

			if observe != nil {
				if payload, err := json.Marshal(trace[len(trace)-1]); err == nil {
					observe("thinking", string(payload))
				}
			}

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	full := buf.String()

	state = stateFinalizing
	logger.Debug("turn %s: account=%s response_len=%d", state, accountID, len(full))

	if full != "" {
		o.scheduleMaintenance(accountID, input, full, trace, bundle)
	}

	state = stateDone
	logger.Debug("turn %s: account=%s", state, accountID)
	return full
}

// executeTool runs one tool call. Argument and execution failures come back
// as descriptive strings for the model to narrate, never as raised errors.
func (o *Orchestrator) executeTool(call llm.ToolCall) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return fmt.Sprintf("错误：工具参数无法解析 - %v", err)
	}

	result, err := o.registry.Execute(call.Function.Name, args)
	if err != nil {
		return fmt.Sprintf("错误：%v", err)
	}
	return result
}

// scheduleMaintenance launches the detached post-turn work: turn
// persistence plus profile usage, and the cadence-gated summary refresh.
// Failures are logged and dropped; nothing here reaches the caller.
func (o *Orchestrator) scheduleMaintenance(accountID, input, response string, trace []ToolCallRecord, bundle *conversation.Context) {
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		defer cancel()
		o.persistTurn(ctx, accountID, input, response, trace, bundle)
	}()

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		defer cancel()
		o.summaries.Refresh(ctx, accountID, false)
	}()
}

func (o *Orchestrator) persistTurn(ctx context.Context, accountID, input, response string, trace []ToolCallRecord, bundle *conversation.Context) {
	if err := o.store.AppendTurn(accountID, input, response); err != nil {
		logger.Error("failed to persist turn: account=%s err=%v", accountID, err)
	}

	record := conversation.MetadataRecord{
		Timestamp:           time.Now().Format(time.RFC3339),
		UserInput:           truncate(input, 100),
		AgentResponseLength: utf8.RuneCountInString(response),
		Metadata: map[string]any{
			"tool_calls":   trace,
			"context_used": bundle,
		},
	}
	if err := o.store.AppendMetadata(accountID, record); err != nil {
		logger.Error("failed to persist turn metadata: account=%s err=%v", accountID, err)
	}

	o.profiles.BumpUsage(ctx, accountID)
}

// fail maps an error to its user-visible apology, emits it, and applies the
// per-class recovery. Nothing from the failed turn is persisted.
func (o *Orchestrator) fail(accountID string, state turnState, err error, emit func(string)) string {
	logger.Error("turn failed in %s: account=%s err=%v", state, accountID, err)

	var msg string
	switch {
	case llm.IsTimeout(err):
		msg = TimeoutApology
	case llm.IsContextLength(err):
		// Start the next turn clean; the profile survives
		if clearErr := o.store.Clear(accountID); clearErr != nil {
			logger.Error("failed to clear overflowed history: account=%s err=%v", accountID, clearErr)
		}
		msg = OverflowApology
	case llm.IsRateLimit(err):
		msg = BusyApology
	default:
		msg = GenericApology
	}

	if emit != nil {
		emit(msg)
	}
	return msg
}

// Wait blocks until all detached maintenance tasks have finished. Used on
// shutdown and in tests.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}
