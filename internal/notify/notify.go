// Package notify publishes keep-alive outcomes to subscribers outside the
// process.
package notify

import (
	"context"
	"time"
)

// TopicKeepAliveExecuted is published once per keep-alive attempt.
const TopicKeepAliveExecuted = "keepalive.executed"

// KeepAliveExecuted describes one keep-alive attempt. It never carries the
// stored credential.
type KeepAliveExecuted struct {
	ConfigID       string    `json:"config_id"`
	UserID         string    `json:"user_id"`
	ConfigName     string    `json:"config_name"`
	Success        bool      `json:"success"`
	Result         string    `json:"result"`
	ExecutionCount int       `json:"execution_count"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
