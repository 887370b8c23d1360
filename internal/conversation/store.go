package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SLZMWLMJY/Legal-ai/internal/config"
	"github.com/SLZMWLMJY/Legal-ai/internal/kvstore"
)

// Store owns the persisted conversation state for all accounts: message
// history, metadata log, and the keys shared with the summary engine.
//
// History writes are read-modify-write with full replacement; the store has
// no cross-history append primitive. The design assumes a single writer per
// account at any instant — concurrent writers race and the last write wins.
type Store struct {
	kv  kvstore.Store
	cfg config.ContextConfig
}

// NewStore creates a conversation store on top of a key-value store.
func NewStore(kv kvstore.Store, cfg config.ContextConfig) *Store {
	return &Store{kv: kv, cfg: cfg}
}

// Read returns the account's history, oldest first. A missing key reads as
// an empty history, never as an error.
func (s *Store) Read(accountID string) ([]Message, error) {
	raw, ok, err := s.kv.Get(chatKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", accountID, err)
	}
	if !ok {
		return []Message{}, nil
	}

	var messages []Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("failed to decode history for %s: %w", accountID, err)
	}
	return messages, nil
}

// Append adds one message to the account's history, truncating to the
// retention window before writing back.
func (s *Store) Append(accountID, role, content string, metadata map[string]any) error {
	messages, err := s.Read(accountID)
	if err != nil {
		return err
	}

	messages = append(messages, NewMessage(role, content, metadata))
	if len(messages) > s.cfg.MaxHistoryMessages {
		messages = messages[len(messages)-s.cfg.MaxHistoryMessages:]
	}

	return s.write(accountID, messages)
}

// AppendTurn stores a completed turn: the user input followed by the
// assistant reply.
func (s *Store) AppendTurn(accountID, userInput, assistantReply string) error {
	if err := s.Append(accountID, RoleUser, userInput, nil); err != nil {
		return err
	}
	return s.Append(accountID, RoleAssistant, assistantReply, nil)
}

func (s *Store) write(accountID string, messages []Message) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode history for %s: %w", accountID, err)
	}
	if err := s.kv.Set(chatKey(accountID), string(raw), 0); err != nil {
		return fmt.Errorf("failed to write history for %s: %w", accountID, err)
	}
	return nil
}

// Clear deletes the account's history together with its summary and summary
// hash. Used after context-overflow errors so the next turn starts clean.
// The profile survives.
func (s *Store) Clear(accountID string) error {
	if err := s.kv.Delete(chatKey(accountID)); err != nil {
		return fmt.Errorf("failed to clear history for %s: %w", accountID, err)
	}
	_ = s.kv.Delete(summaryKey(accountID))
	_ = s.kv.Delete(summaryHashKey(accountID))
	return nil
}

// AppendMetadata appends a record to the account's day-bucketed metadata
// log, capped to the most recent records and TTL'd as a whole.
func (s *Store) AppendMetadata(accountID string, record MetadataRecord) error {
	key := metadataKey(accountID, time.Now())

	var records []MetadataRecord
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read metadata log for %s: %w", accountID, err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			// A malformed log is replaced rather than kept poisoned
			records = nil
		}
	}

	records = append(records, record)
	if max := s.cfg.MetadataMaxRecords; max > 0 && len(records) > max {
		records = records[len(records)-max:]
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode metadata log for %s: %w", accountID, err)
	}
	if err := s.kv.Set(key, string(encoded), s.cfg.MetadataTTL()); err != nil {
		return fmt.Errorf("failed to write metadata log for %s: %w", accountID, err)
	}
	return nil
}

// ReadMetadata returns today's metadata log for the account.
func (s *Store) ReadMetadata(accountID string) ([]MetadataRecord, error) {
	raw, ok, err := s.kv.Get(metadataKey(accountID, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata log for %s: %w", accountID, err)
	}
	if !ok {
		return []MetadataRecord{}, nil
	}
	var records []MetadataRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("failed to decode metadata log for %s: %w", accountID, err)
	}
	return records, nil
}
