// Package events publishes transaction lifecycle events for downstream
// consumers. The default publisher is a noop; RabbitMQ is enabled through
// configuration.
package events

import (
	"context"
	"time"
)

// 事件类型。
const (
	KindTxQueued          = "tx_queued"
	KindTxSubmitted       = "tx_submitted"
	KindTxFailed          = "tx_failed"
	KindSwapExecuted      = "swap_executed"
	KindAttestationIssued = "attestation_issued"
)

// Event 是一条交易生命周期事件。
type Event struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Token     string    `json:"token,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher 发布事件。发布失败不应阻断用户请求，由调用方决定吞掉还是记录。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher 丢弃所有事件。
type NoopPublisher struct{}

// Publish 实现 Publisher，总是成功。
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher。
func (NoopPublisher) Close() error { return nil }
