package mysql

import (
	"context"
	"sync"
	"time"
)

// MemoryExchangeRepository 将审计记录保留在进程内存中，是默认驱动。
// 只保留最近 maxRecords 条，超出后丢弃最旧的。
type MemoryExchangeRepository struct {
	mu         sync.RWMutex
	records    []Exchange
	nextID     int64
	maxRecords int
}

// NewMemoryExchangeRepository 创建内存审计仓库。
func NewMemoryExchangeRepository() *MemoryExchangeRepository {
	return &MemoryExchangeRepository{nextID: 1, maxRecords: 1024}
}

// Create 追加一条记录。
func (m *MemoryExchangeRepository) Create(_ context.Context, record *Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	record.ID = m.nextID
	m.nextID++

	m.records = append(m.records, *record)
	if len(m.records) > m.maxRecords {
		m.records = m.records[len(m.records)-m.maxRecords:]
	}
	return nil
}

// ListBySession 按时间倒序返回指定会话的最近记录。
func (m *MemoryExchangeRepository) ListBySession(_ context.Context, sessionID string, limit int) ([]Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var results []Exchange
	for i := len(m.records) - 1; i >= 0 && len(results) < limit; i-- {
		if m.records[i].SessionID == sessionID {
			results = append(results, m.records[i])
		}
	}
	return results, nil
}

// Close 实现 ExchangeRepository，内存仓库无需释放资源。
func (m *MemoryExchangeRepository) Close() error { return nil }

var _ ExchangeRepository = (*MemoryExchangeRepository)(nil)
