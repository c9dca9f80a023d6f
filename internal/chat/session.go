package chat

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultContextWindow 是会话上下文窗口的默认容量（条目数）。
const DefaultContextWindow = 64

// Session 保存一个会话的可变状态：有界的上下文窗口与证明请求标志。
// 窗口里是尚未进入 AI 对话历史的内容，在下一次对话生成时整体送入；
// 窗口满了以后丢弃最旧的条目。
type Session struct {
	ID string

	mu                   sync.Mutex
	chunks               []string
	maxChunks            int
	attestationRequested bool
}

// AppendContext 追加一条上下文，超出窗口容量时淘汰最旧的条目。
func (s *Session) AppendContext(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, text)
	if len(s.chunks) > s.maxChunks {
		s.chunks = s.chunks[len(s.chunks)-s.maxChunks:]
	}
}

// Context 返回当前窗口内的全部上下文。
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.chunks, "\n")
}

// ClearContext 清空上下文窗口。
func (s *Session) ClearContext() {
	s.mu.Lock()
	s.chunks = nil
	s.mu.Unlock()
}

// SetAttestationRequested 设置证明请求标志。
func (s *Session) SetAttestationRequested(v bool) {
	s.mu.Lock()
	s.attestationRequested = v
	s.mu.Unlock()
}

// ConsumeAttestationRequest 读取并清除证明请求标志。
// 标志一旦置位，下一条消息无论内容如何都会被消费，之后无条件复位。
func (s *Session) ConsumeAttestationRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	requested := s.attestationRequested
	s.attestationRequested = false
	return requested
}

// Manager 按会话 id 管理 Session，id 缺省时生成新的 UUID。
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	window   int
}

// NewManager 创建会话管理器；window <= 0 时使用默认窗口容量。
func NewManager(window int) *Manager {
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &Manager{sessions: make(map[string]*Session), window: window}
}

// Ensure 返回指定 id 的会话，不存在则创建；id 为空时生成新会话。
func (m *Manager) Ensure(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	session, ok := m.sessions[id]
	if !ok {
		session = &Session{ID: id, maxChunks: m.window}
		m.sessions[id] = session
	}
	return session
}
