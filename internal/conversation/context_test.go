package conversation

import (
	"context"
	"fmt"
	"testing"
)

func newTestAssembler(t *testing.T, gen Generator) (*Assembler, *Store) {
	t.Helper()
	kv := newTestKV(t)
	store := NewStore(kv, testContextConfig())
	summaries := NewSummaryEngine(kv, store, gen, testContextConfig())
	profiles := NewProfileEngine(kv, store, gen, testContextConfig())
	return NewAssembler(store, summaries, profiles), store
}

func seedTurns(t *testing.T, store *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := store.Append("u1", RoleUser, fmt.Sprintf("消息%d", i), nil); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func TestAssemble_Full(t *testing.T) {
	assembler, store := newTestAssembler(t, &fakeGenerator{})
	seedTurns(t, store, 7)

	bundle, err := assembler.Assemble(context.Background(), "u1", StrategyFull, 2000)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(bundle.History) != 7 {
		t.Errorf("Expected full history of 7, got %d", len(bundle.History))
	}
	if bundle.Summary != "" {
		t.Errorf("Expected no summary under full strategy, got '%s'", bundle.Summary)
	}
	if bundle.Profile == nil {
		t.Error("Expected profile attached")
	}
}

func TestAssemble_Summary(t *testing.T) {
	assembler, store := newTestAssembler(t, &fakeGenerator{text: "对话摘要"})
	seedTurns(t, store, 4)

	bundle, err := assembler.Assemble(context.Background(), "u1", StrategySummary, 2000)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(bundle.History) != 0 {
		t.Errorf("Expected no history under summary strategy, got %d", len(bundle.History))
	}
	if bundle.Summary != "对话摘要" {
		t.Errorf("Expected summary, got '%s'", bundle.Summary)
	}
}

func TestAssemble_HybridLongHistory(t *testing.T) {
	assembler, store := newTestAssembler(t, &fakeGenerator{text: "对话摘要"})
	seedTurns(t, store, 6)

	bundle, err := assembler.Assemble(context.Background(), "u1", StrategyHybrid, 2000)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(bundle.History) != 3 {
		t.Fatalf("Expected last 3 messages, got %d", len(bundle.History))
	}
	if bundle.History[0].Content != "消息3" {
		t.Errorf("Expected window to start at 消息3, got '%s'", bundle.History[0].Content)
	}
	if bundle.Summary != "对话摘要" {
		t.Errorf("Expected summary alongside recent messages, got '%s'", bundle.Summary)
	}
}

func TestAssemble_HybridShortHistory(t *testing.T) {
	gen := &fakeGenerator{text: "对话摘要"}
	assembler, store := newTestAssembler(t, gen)
	seedTurns(t, store, 2)

	bundle, err := assembler.Assemble(context.Background(), "u1", StrategyHybrid, 2000)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(bundle.History) != 2 {
		t.Errorf("Expected all 2 messages, got %d", len(bundle.History))
	}
	if bundle.Summary != "" {
		t.Errorf("Expected no summary for short history, got '%s'", bundle.Summary)
	}
}

func TestAssemble_Window(t *testing.T) {
	assembler, store := newTestAssembler(t, &fakeGenerator{})
	seedTurns(t, store, 8)

	bundle, err := assembler.Assemble(context.Background(), "u1", StrategyWindow, 2000)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(bundle.History) != 5 {
		t.Fatalf("Expected window of 5, got %d", len(bundle.History))
	}
	if bundle.History[4].Content != "消息7" {
		t.Errorf("Expected newest message last, got '%s'", bundle.History[4].Content)
	}
	if bundle.Summary != "" {
		t.Errorf("Expected no summary under window strategy, got '%s'", bundle.Summary)
	}
}

func TestAssemble_UnknownStrategy(t *testing.T) {
	assembler, _ := newTestAssembler(t, &fakeGenerator{})

	_, err := assembler.Assemble(context.Background(), "u1", Strategy("vector"), 2000)
	if err == nil {
		t.Fatal("Expected error for unknown strategy")
	}
}
