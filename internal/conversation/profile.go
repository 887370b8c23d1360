package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SLZMWLMJY/Legal-ai/internal/config"
	"github.com/SLZMWLMJY/Legal-ai/internal/kvstore"
	"github.com/SLZMWLMJY/Legal-ai/internal/logger"
)

const profilePromptTemplate = `根据以下对话历史，分析用户特征：

对话历史：
%s

请分析：
1. 用户可能的法律领域兴趣
2. 用户的对话风格偏好（正式/随意）
3. 用户的身份特征（个人/企业/学生等）
4. 用户关心的主要法律问题类型

返回JSON格式：
{
    "legal_interests": [],
    "conversation_style": "",
    "user_type": "",
    "concerned_areas": []
}
`

// inferredProfile is the subset of fields the model is asked to fill in.
type inferredProfile struct {
	LegalInterests    []string `json:"legal_interests"`
	ConversationStyle string   `json:"conversation_style"`
	UserType          string   `json:"user_type"`
	ConcernedAreas    []string `json:"concerned_areas"`
}

// ProfileEngine maintains the per-account user profile. The profile always
// exists after first access: a default is constructed and, when history is
// available, refined by one model inference whose parse failures are logged
// and ignored.
type ProfileEngine struct {
	kv    kvstore.Store
	store *Store
	gen   Generator
	cfg   config.ContextConfig
}

// NewProfileEngine creates a profile engine.
func NewProfileEngine(kv kvstore.Store, store *Store, gen Generator, cfg config.ContextConfig) *ProfileEngine {
	return &ProfileEngine{kv: kv, store: store, gen: gen, cfg: cfg}
}

// Profile returns the account's profile, seeding it on first access.
func (e *ProfileEngine) Profile(ctx context.Context, accountID string) UserProfile {
	raw, ok, err := e.kv.Get(profileKey(accountID))
	if err == nil && ok {
		var profile UserProfile
		if err := json.Unmarshal([]byte(raw), &profile); err == nil {
			return profile
		}
		logger.Warn("stored profile is malformed, reseeding: account=%s", accountID)
	}

	profile := DefaultProfile()

	messages, err := e.store.Read(accountID)
	if err != nil {
		logger.Warn("failed to read history for profile inference: account=%s err=%v", accountID, err)
		messages = nil
	}

	if len(messages) > 0 {
		e.infer(ctx, accountID, messages, &profile)
	}

	e.persist(accountID, profile)
	return profile
}

// infer runs one model inference over history and merges parsed fields into
// the profile. Parse failures keep the defaults.
func (e *ProfileEngine) infer(ctx context.Context, accountID string, messages []Message, profile *UserProfile) {
	serialized, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		logger.Warn("failed to serialize history for profile inference: account=%s err=%v", accountID, err)
		return
	}

	response, err := e.gen.Generate(ctx, fmt.Sprintf(profilePromptTemplate, string(serialized)))
	if err != nil {
		logger.Warn("profile inference failed: account=%s err=%v", accountID, err)
		return
	}

	var inferred inferredProfile
	if err := json.Unmarshal([]byte(response), &inferred); err != nil {
		logger.Warn("profile inference returned unparseable data: account=%s err=%v", accountID, err)
		return
	}

	if len(inferred.LegalInterests) > 0 {
		profile.LegalInterests = inferred.LegalInterests
	}
	if inferred.ConversationStyle != "" {
		profile.ConversationStyle = inferred.ConversationStyle
	}
	if inferred.UserType != "" {
		profile.UserType = inferred.UserType
	}
	if len(inferred.ConcernedAreas) > 0 {
		profile.ConcernedAreas = inferred.ConcernedAreas
	}
}

// BumpUsage increments the profile's conversation counter and refreshes the
// last-active timestamp. Called once per completed turn.
func (e *ProfileEngine) BumpUsage(ctx context.Context, accountID string) {
	profile := e.Profile(ctx, accountID)

	profile.TotalConversations++
	profile.LastActive = time.Now().Format(time.RFC3339)

	e.persist(accountID, profile)
	logger.Info("updated profile usage: account=%s conversations=%d", accountID, profile.TotalConversations)
}

func (e *ProfileEngine) persist(accountID string, profile UserProfile) {
	raw, err := json.Marshal(profile)
	if err != nil {
		logger.Error("failed to encode profile: account=%s err=%v", accountID, err)
		return
	}
	if err := e.kv.Set(profileKey(accountID), string(raw), e.cfg.ProfileTTL()); err != nil {
		logger.Error("failed to store profile: account=%s err=%v", accountID, err)
	}
}
