// Package conversation implements per-account conversation state: bounded
// message history, a hash-guarded rolling summary, an inferred user profile,
// and the assembly of those pieces into the context handed to the agent.
package conversation

import (
	"context"
	"time"
)

// Message roles. Roles are fixed at the system boundary; internal code never
// re-derives them from message shape.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single stored conversation entry. Immutable once stored.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role, content string, metadata map[string]any) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
		Metadata:  metadata,
	}
}

// UserProfile is the slowly-evolving per-account profile. Seeded with
// defaults on first access, refined by model inference over history.
type UserProfile struct {
	PreferredLanguage  string   `json:"preferred_language"`
	LegalInterests     []string `json:"legal_interests"`
	ConversationStyle  string   `json:"conversation_style"`
	UserType           string   `json:"user_type,omitempty"`
	ConcernedAreas     []string `json:"concerned_areas,omitempty"`
	LastActive         string   `json:"last_active"`
	TotalConversations int      `json:"total_conversations"`
}

// DefaultProfile returns the profile used before any inference has run.
func DefaultProfile() UserProfile {
	return UserProfile{
		PreferredLanguage:  "zh-CN",
		LegalInterests:     []string{},
		ConversationStyle:  "formal",
		LastActive:         time.Now().Format(time.RFC3339),
		TotalConversations: 0,
	}
}

// MetadataRecord is one entry of the day-bucketed conversation metadata log.
type MetadataRecord struct {
	Timestamp           string         `json:"timestamp"`
	UserInput           string         `json:"user_input"`
	AgentResponseLength int            `json:"agent_response_length"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Strategy selects how history and summary are combined into a context.
type Strategy string

const (
	StrategyFull    Strategy = "full"    // entire stored history, no summary
	StrategySummary Strategy = "summary" // summary only
	StrategyHybrid  Strategy = "hybrid"  // recent messages plus summary
	StrategyWindow  Strategy = "window"  // fixed-size recent window
)

// Context is the bundle handed to the agent for one turn.
type Context struct {
	History    []Message    `json:"history"`
	Summary    string       `json:"summary"`
	Strategy   Strategy     `json:"strategy"`
	TokensUsed int          `json:"tokens_used"`
	Profile    *UserProfile `json:"user_profile,omitempty"`
}

// Generator produces text from a single prompt. Satisfied by *llm.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
