package conversation

import (
	"context"
	"fmt"
)

const (
	hybridRecentCount = 3
	windowSize        = 5
)

// Assembler combines history, summary, and profile into the context bundle
// for one turn, according to a retrieval strategy.
type Assembler struct {
	store     *Store
	summaries *SummaryEngine
	profiles  *ProfileEngine
}

// NewAssembler creates a context assembler.
func NewAssembler(store *Store, summaries *SummaryEngine, profiles *ProfileEngine) *Assembler {
	return &Assembler{store: store, summaries: summaries, profiles: profiles}
}

// Assemble builds the context for an account under the given strategy.
//
// maxTokens is advisory: no strategy currently enforces it against actual
// token counts. Callers should treat it as a hint until real token
// accounting lands.
func (a *Assembler) Assemble(ctx context.Context, accountID string, strategy Strategy, maxTokens int) (*Context, error) {
	messages, err := a.store.Read(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	bundle := &Context{
		History:  []Message{},
		Strategy: strategy,
	}

	switch strategy {
	case StrategyFull:
		bundle.History = messages

	case StrategySummary:
		bundle.Summary = a.summaries.Summary(ctx, accountID)

	case StrategyHybrid:
		if len(messages) > hybridRecentCount {
			bundle.History = messages[len(messages)-hybridRecentCount:]
			bundle.Summary = a.summaries.Summary(ctx, accountID)
		} else {
			bundle.History = messages
		}

	case StrategyWindow:
		if len(messages) > windowSize {
			bundle.History = messages[len(messages)-windowSize:]
		} else {
			bundle.History = messages
		}

	default:
		return nil, fmt.Errorf("unknown context strategy: %s", strategy)
	}

	profile := a.profiles.Profile(ctx, accountID)
	bundle.Profile = &profile

	return bundle, nil
}
