package conversation

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"

	"github.com/SLZMWLMJY/Legal-ai/internal/config"
	"github.com/SLZMWLMJY/Legal-ai/internal/kvstore"
	"github.com/SLZMWLMJY/Legal-ai/internal/logger"
)

const summaryPromptTemplate = `请根据以下对话历史生成一个简洁的核心摘要，突出主要话题和关键信息：

%s

摘要要求：
1. 突出对话的主要话题和关键信息
2. 使用第三人称描述，提取重要数据/时间节点/待办事项
3. 保留原始对话中的重要细节
4. 确保包含最新的对话内容
5. 长度不超过200字
`

// SummaryEngine maintains the per-account rolling summary. A summary is
// valid only while its stored content hash matches the hash of the current
// history; hashing trades a cheap comparison for an expensive model call.
type SummaryEngine struct {
	kv    kvstore.Store
	store *Store
	gen   Generator
	cfg   config.ContextConfig
}

// NewSummaryEngine creates a summary engine.
func NewSummaryEngine(kv kvstore.Store, store *Store, gen Generator, cfg config.ContextConfig) *SummaryEngine {
	return &SummaryEngine{kv: kv, store: store, gen: gen, cfg: cfg}
}

// historyHash is the staleness digest of a serialized history.
func historyHash(messages []Message) (string, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", md5.Sum(raw)), nil
}

// Summary returns the account's summary, regenerating it when the cached
// one is missing, expired, or stale. Any failure degrades to an empty
// string; a missing summary must never fail the turn.
func (e *SummaryEngine) Summary(ctx context.Context, accountID string) string {
	messages, err := e.store.Read(accountID)
	if err != nil {
		logger.Error("failed to read history for summary: account=%s err=%v", accountID, err)
		return ""
	}

	cached, haveCached, err := e.kv.Get(summaryKey(accountID))
	if err != nil {
		logger.Error("failed to read cached summary: account=%s err=%v", accountID, err)
		return ""
	}

	hash, err := historyHash(messages)
	if err != nil {
		logger.Error("failed to hash history: account=%s err=%v", accountID, err)
		return ""
	}

	lastHash, _, err := e.kv.Get(summaryHashKey(accountID))
	if err != nil {
		logger.Error("failed to read summary hash: account=%s err=%v", accountID, err)
		return ""
	}

	// Unexpired and history unchanged: no model call
	if haveCached && lastHash == hash {
		return cached
	}

	if len(messages) == 0 {
		return ""
	}

	serialized, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		logger.Error("failed to serialize history for summary: account=%s err=%v", accountID, err)
		return ""
	}

	newSummary, err := e.gen.Generate(ctx, fmt.Sprintf(summaryPromptTemplate, string(serialized)))
	if err != nil {
		logger.Error("failed to generate summary: account=%s err=%v", accountID, err)
		return ""
	}

	ttl := e.cfg.SummaryTTL()
	if err := e.kv.Set(summaryKey(accountID), newSummary, ttl); err != nil {
		logger.Error("failed to store summary: account=%s err=%v", accountID, err)
	}
	if err := e.kv.Set(summaryHashKey(accountID), hash, ttl); err != nil {
		logger.Error("failed to store summary hash: account=%s err=%v", accountID, err)
	}

	return newSummary
}

// Refresh bumps the account's turn counter and regenerates the summary when
// the cadence threshold is hit or force is set; otherwise the cached summary
// is returned unchanged. The counter wraps at the configured ceiling — only
// the modulus matters.
func (e *SummaryEngine) Refresh(ctx context.Context, accountID string, force bool) string {
	count, err := e.kv.Incr(counterKey(accountID))
	if err != nil {
		logger.Error("failed to bump conversation counter: account=%s err=%v", accountID, err)
		return ""
	}

	if force || count%int64(e.cfg.SummaryUpdateThreshold) == 0 {
		summary := e.Summary(ctx, accountID)
		logger.Info("refreshed conversation summary: account=%s count=%d", accountID, count)

		if count >= int64(e.cfg.CounterCeiling) {
			if err := e.kv.Set(counterKey(accountID), "0", 0); err != nil {
				logger.Error("failed to reset conversation counter: account=%s err=%v", accountID, err)
			}
		}
		return summary
	}

	cached, _, err := e.kv.Get(summaryKey(accountID))
	if err != nil {
		logger.Error("failed to read cached summary: account=%s err=%v", accountID, err)
		return ""
	}
	return cached
}
