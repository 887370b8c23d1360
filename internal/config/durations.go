package config

import "time"

// SummaryTTL returns the summary cache lifetime as a duration.
func (c ContextConfig) SummaryTTL() time.Duration {
	return time.Duration(c.SummaryTTLHours) * time.Hour
}

// ProfileTTL returns the user profile lifetime as a duration.
func (c ContextConfig) ProfileTTL() time.Duration {
	return time.Duration(c.ProfileTTLDays) * 24 * time.Hour
}

// MetadataTTL returns the conversation metadata log lifetime as a duration.
func (c ContextConfig) MetadataTTL() time.Duration {
	return time.Duration(c.MetadataTTLDays) * 24 * time.Hour
}

// Timeout returns the chat model request timeout as a duration.
func (c ModelConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
