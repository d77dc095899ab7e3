// Package llm contains thin HTTP clients for the supported model
// backends. Each client implements ports.ModelProvider; provider
// selection and per-task model resolution live in the providers adapter.
package llm

import "time"

// defaultMaxTokens caps completion length when the caller does not set one.
const defaultMaxTokens = 4096

// defaultTimeout is used when the configured request timeout is zero.
const defaultTimeout = 120 * time.Second

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
