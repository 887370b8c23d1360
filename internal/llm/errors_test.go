package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRateLimit(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("API returned error (status 429): too many requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("API error: rate_limit_exceeded"), true},
		{errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		if got := IsRateLimit(tc.err); got != tc.want {
			t.Errorf("IsRateLimit(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsContextLength(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("API error: context_length_exceeded"), true},
		{errors.New("this model's maximum context length is 8192 tokens"), true},
		{errors.New("rate limit exceeded"), false},
	}

	for _, tc := range cases {
		if got := IsContextLength(tc.err); got != tc.want {
			t.Errorf("IsContextLength(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("failed to send request: %w", context.DeadlineExceeded), true},
		{errors.New("request timeout"), true},
		{errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		if got := IsTimeout(tc.err); got != tc.want {
			t.Errorf("IsTimeout(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
