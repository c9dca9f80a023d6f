package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DeFAI-Agent/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

// Exchange 表示一次对话交换的落库结构。
type Exchange struct {
	ID          int64
	SessionID   string
	UserMessage string
	Response    string
	Intent      string
	CreatedAt   int64
}

// ExchangeRepository 抽象对话审计日志的持久化接口。
type ExchangeRepository interface {
	Create(ctx context.Context, record *Exchange) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]Exchange, error)
	Close() error
}

// SQLExchangeRepository 使用 MySQL 持久化对话审计日志。
type SQLExchangeRepository struct {
	db *sql.DB
}

// NewSQLExchangeRepository 建立连接池并确保表结构存在。
func NewSQLExchangeRepository(ctx context.Context, cfg config.ExchangeStoreConfig) (*SQLExchangeRepository, error) {
	dsn := cfg.ResolveDSN()
	if dsn == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	repo := &SQLExchangeRepository{db: db}
	if err := repo.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLExchangeRepository) ensureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS chat_exchanges (
        id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
        session_id VARCHAR(64) NOT NULL,
        user_message TEXT NOT NULL,
        response MEDIUMTEXT NOT NULL,
        intent VARCHAR(32) NOT NULL,
        created_at BIGINT NOT NULL,
        KEY idx_session_created (session_id, created_at)
)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("创建 chat_exchanges 表失败: %w", err)
	}
	return nil
}

// Create 追加一条对话审计记录。
func (r *SQLExchangeRepository) Create(ctx context.Context, record *Exchange) error {
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	const query = `INSERT INTO chat_exchanges (session_id, user_message, response, intent, created_at)
VALUES (?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		record.SessionID, record.UserMessage, record.Response, record.Intent, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("写入对话审计记录失败: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListBySession 按时间倒序返回指定会话的最近记录。
func (r *SQLExchangeRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, session_id, user_message, response, intent, created_at
FROM chat_exchanges WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询对话审计记录失败: %w", err)
	}
	defer rows.Close()

	var records []Exchange
	for rows.Next() {
		var record Exchange
		if err := rows.Scan(&record.ID, &record.SessionID, &record.UserMessage,
			&record.Response, &record.Intent, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析对话审计记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历对话审计记录失败: %w", err)
	}
	return records, nil
}

// Close 释放连接池。
func (r *SQLExchangeRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ ExchangeRepository = (*SQLExchangeRepository)(nil)
