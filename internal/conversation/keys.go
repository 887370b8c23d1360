package conversation

import (
	"fmt"
	"time"
)

// Per-account key namespace in the underlying key-value store. Each entity
// lives under its own key and carries its own TTL.

func chatKey(accountID string) string {
	return "chat_history:" + accountID
}

func summaryKey(accountID string) string {
	return "chat_summary:" + accountID
}

func summaryHashKey(accountID string) string {
	return "summary_hash:" + accountID
}

func profileKey(accountID string) string {
	return "user_profile:" + accountID
}

func counterKey(accountID string) string {
	return "conv_count:" + accountID
}

// metadataKey buckets metadata logs by day so old sessions age out together.
func metadataKey(accountID string, day time.Time) string {
	return fmt.Sprintf("conv_metadata:%s:%s", accountID, day.Format("20060102"))
}
