package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"DeFAI-Agent/internal/ai"
	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/internal/events"
	"DeFAI-Agent/internal/oracle"
	"DeFAI-Agent/internal/prompts"
	"DeFAI-Agent/internal/storage/mysql"
	"DeFAI-Agent/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// ChainProvider 是调度器依赖的链上能力，由 flare.Provider 实现。
type ChainProvider interface {
	HasAccount() bool
	Address() common.Address
	GenerateAccount() (common.Address, error)
	CreateSendFLRTx(ctx context.Context, to string, amount float64) (*coretypes.Transaction, error)
	AddTxToQueue(msg string, tx *coretypes.Transaction)
	PendingMsg() (string, bool)
	SendTxInQueue(ctx context.Context) (string, error)
	HandleSwapToken(ctx context.Context, fromToken, toToken string, amount float64) (string, error)
	ExplorerURL() string
	Reset()
}

// Attestor 获取远程证明令牌。
type Attestor interface {
	GetToken(ctx context.Context, nonces []string) (string, error)
}

// PriceAnalytics 是价格分析能力，由 oracle.Engine 实现。
type PriceAnalytics interface {
	CoinInfo(ctx context.Context, message string) (string, error)
	MarketWatch(ctx context.Context) (string, error)
}

// Dispatcher 按固定优先级路由消息：命令、待确认交易、证明标志、意图分发。
type Dispatcher struct {
	sessions   *Manager
	ai         ai.Provider
	prompts    *prompts.Service
	classifier *Classifier
	chain      ChainProvider
	analytics  PriceAnalytics
	attestor   Attestor
	catalog    *oracle.Catalog
	repo       mysql.ExchangeRepository
	publisher  events.Publisher
	log        *slog.Logger
	audit      *slog.Logger
}

// DispatcherDeps 汇总调度器的全部依赖。
type DispatcherDeps struct {
	Sessions   *Manager
	AI         ai.Provider
	Prompts    *prompts.Service
	Chain      ChainProvider
	Analytics  PriceAnalytics
	Attestor   Attestor
	Catalog    *oracle.Catalog
	Repository mysql.ExchangeRepository
	Publisher  events.Publisher
}

// NewDispatcher 构造消息调度器。Repository 与 Publisher 可为 nil。
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = oracle.DefaultCatalog()
	}
	return &Dispatcher{
		sessions:   deps.Sessions,
		ai:         deps.AI,
		prompts:    deps.Prompts,
		classifier: NewClassifier(deps.AI, deps.Prompts),
		chain:      deps.Chain,
		analytics:  deps.Analytics,
		attestor:   deps.Attestor,
		catalog:    catalog,
		repo:       deps.Repository,
		publisher:  publisher,
		log:        logger.Named("dispatcher"),
		audit:      logger.Audit(),
	}
}

// HandleMessage 处理一条用户消息并返回回复文本。
// 优先级（先匹配先赢）：
//  1. "/" 开头的命令；
//  2. 与待确认交易原始消息逐字节相等的确认；
//  3. 证明请求标志置位时，消息整体作为证明材料；
//  4. 追加上下文、意图分类、按意图分发。
func (d *Dispatcher) HandleMessage(ctx context.Context, sessionID, text string) (string, error) {
	if text == "" {
		return "", xerrors.New(xerrors.CodeValidation, "消息不能为空")
	}
	session := d.sessions.Ensure(sessionID)

	if strings.HasPrefix(text, "/") {
		reply := d.handleCommand(session, text)
		d.record(ctx, session.ID, text, reply, "command")
		return reply, nil
	}

	// 确认门禁要求与原始消息逐字节相等，防止误触发广播。
	if pendingMsg, ok := d.chain.PendingMsg(); ok && text == pendingMsg {
		reply := d.confirmPending(ctx, session)
		d.record(ctx, session.ID, text, reply, "tx_confirmation")
		return reply, nil
	}

	if session.ConsumeAttestationRequest() {
		reply := d.handleAttestation(ctx, session, text)
		d.record(ctx, session.ID, text, reply, "attestation")
		return reply, nil
	}

	session.AppendContext(text)
	intent := d.classifier.Classify(ctx, text)
	reply, err := d.dispatch(ctx, session, intent, text)
	if err != nil {
		d.log.Error("消息处理失败", "session", session.ID, "intent", string(intent), "error", err)
		return "", err
	}
	// 对话回复已进入 AI 的对话历史，不再入窗口；其余处理器的产物
	// （交易预览、行情回复等）留在窗口里，等待下一次对话时送入。
	if intent != IntentConversational {
		session.AppendContext(reply)
	}
	d.record(ctx, session.ID, text, reply, string(intent))
	return reply, nil
}

func (d *Dispatcher) handleCommand(session *Session, text string) string {
	command := strings.TrimSpace(strings.TrimPrefix(text, "/"))
	if command == "reset" {
		d.chain.Reset()
		d.ai.Reset()
		session.ClearContext()
		session.SetAttestationRequested(false)
		d.audit.Info("会话已重置", "session", session.ID)
		return "Reset complete"
	}
	return "Unknown command"
}

func (d *Dispatcher) confirmPending(ctx context.Context, session *Session) string {
	hash, err := d.chain.SendTxInQueue(ctx)
	if err != nil {
		d.publish(ctx, session.ID, events.KindTxFailed, "", "", err.Error())
		// 链上拒绝原样上抛给用户，绝不自动重试，上下文保持不变。
		return "Unfortunately the tx failed with the error:\n" + err.Error()
	}

	d.audit.Info("交易已广播", "session", session.ID, "tx_hash", hash)
	d.publish(ctx, session.ID, events.KindTxSubmitted, hash, "", "")

	prompt, err := d.prompts.GetFormatted("tx_confirmation", map[string]any{
		"tx_hash":        hash,
		"block_explorer": d.chain.ExplorerURL(),
	})
	if err == nil {
		if resp, genErr := d.ai.SendMessage(ctx, prompt.Text); genErr == nil {
			return resp.Text
		}
	}
	return fmt.Sprintf("Transaction confirmed: %s\n%s/tx/%s", hash, d.chain.ExplorerURL(), hash)
}

func (d *Dispatcher) handleAttestation(ctx context.Context, session *Session, text string) string {
	token, err := d.attestor.GetToken(ctx, []string{text})
	if err != nil {
		return "The attestation failed with error:\n" + err.Error()
	}
	d.audit.Info("已签发证明令牌", "session", session.ID)
	d.publish(ctx, session.ID, events.KindAttestationIssued, "", token, "")
	return "Your attestation token:\n\n" + token
}

func (d *Dispatcher) dispatch(ctx context.Context, session *Session, intent Intent, text string) (string, error) {
	switch intent {
	case IntentGenerateAccount:
		return d.handleGenerateAccount(ctx)
	case IntentSendToken:
		return d.handleSendToken(ctx, session, text)
	case IntentSwapToken:
		return d.handleSwapToken(ctx, session, text)
	case IntentRequestAttestation:
		return d.handleRequestAttestation(ctx, session)
	case IntentCoinInfo:
		return d.analytics.CoinInfo(ctx, text)
	case IntentMarketWatch:
		return d.analytics.MarketWatch(ctx)
	case IntentConversational:
		return d.handleConversational(ctx, session)
	default:
		return "Unsupported route", nil
	}
}

func (d *Dispatcher) handleGenerateAccount(ctx context.Context) (string, error) {
	if d.chain.HasAccount() {
		return fmt.Sprintf("Account exists - %s", d.chain.Address().Hex()), nil
	}
	address, err := d.chain.GenerateAccount()
	if err != nil {
		return "", err
	}
	d.audit.Info("已生成新账户", "address", address.Hex())

	prompt, err := d.prompts.GetFormatted("generate_account", map[string]any{"address": address.Hex()})
	if err == nil {
		if resp, genErr := d.ai.SendMessage(ctx, prompt.Text); genErr == nil {
			return resp.Text, nil
		}
	}
	return fmt.Sprintf("Your new account is ready: %s", address.Hex()), nil
}

func (d *Dispatcher) handleSendToken(ctx context.Context, session *Session, text string) (string, error) {
	if !d.chain.HasAccount() {
		if _, err := d.chain.GenerateAccount(); err != nil {
			return "", err
		}
	}

	amount, okAmount := ExtractAmount(text)
	to, okAddress := ExtractAddress(text)
	if !okAmount || amount == 0 || !okAddress {
		return d.followUpTokenSend(ctx)
	}

	tx, err := d.chain.CreateSendFLRTx(ctx, to, amount)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeValidation) {
			return d.followUpTokenSend(ctx)
		}
		return "", err
	}

	d.chain.AddTxToQueue(text, tx)
	d.publish(ctx, session.ID, events.KindTxQueued, "", "FLR", fmt.Sprintf("send %g FLR to %s", amount, to))
	return fmt.Sprintf("Transaction Preview: Sending %g FLR to %s\nType CONFIRM to proceed.", amount, to), nil
}

func (d *Dispatcher) followUpTokenSend(ctx context.Context) (string, error) {
	prompt, err := d.prompts.GetFormatted("follow_up_token_send", nil)
	if err == nil {
		if resp, genErr := d.ai.SendMessage(ctx, prompt.Text); genErr == nil {
			return resp.Text, nil
		}
	}
	return "Please repeat the request with the amount of FLR and the 0x destination address.", nil
}

func (d *Dispatcher) handleSwapToken(ctx context.Context, session *Session, text string) (string, error) {
	swap, ok := ExtractSwap(text)
	if !ok {
		return "Please provide swap details like: 'Swap 10 FLR for USDC'.", nil
	}
	if !d.catalog.SwapSupported(swap.FromToken) || !d.catalog.SwapSupported(swap.ToToken) {
		return fmt.Sprintf("Sorry, I can only swap between these tokens: %s.",
			strings.Join(d.catalog.SwapTokens, ", ")), nil
	}

	if !d.chain.HasAccount() {
		if _, err := d.chain.GenerateAccount(); err != nil {
			return "", err
		}
	}

	hash, err := d.chain.HandleSwapToken(ctx, swap.FromToken, swap.ToToken, swap.Amount)
	if err != nil {
		return "", err
	}

	d.audit.Info("已准备兑换交易", "session", session.ID, "from", swap.FromToken, "to", swap.ToToken, "tx_hash", hash)
	d.publish(ctx, session.ID, events.KindSwapExecuted, hash, swap.FromToken, fmt.Sprintf("%g %s -> %s", swap.Amount, swap.FromToken, swap.ToToken))

	lines := []string{
		fmt.Sprintf("Swap prepared: %g %s → %s", swap.Amount, swap.FromToken, swap.ToToken),
		fmt.Sprintf("Transaction hash: %s", hash),
	}
	if swap.FromToken != "FLR" {
		lines = append(lines, fmt.Sprintf("Note: swapping %s requires a token approval before execution.", swap.FromToken))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) handleRequestAttestation(ctx context.Context, session *Session) (string, error) {
	session.SetAttestationRequested(true)

	prompt, err := d.prompts.GetFormatted("request_attestation", nil)
	if err == nil {
		if resp, genErr := d.ai.SendMessage(ctx, prompt.Text); genErr == nil {
			return resp.Text, nil
		}
	}
	return "An attestation token will be generated from your next message. Reply with a random nonce phrase.", nil
}

// handleConversational 把窗口中尚未进入 AI 对话历史的内容（交易预览、
// 行情回复等，末尾是本条消息）一次性送入模型。送达即清空窗口：这些
// 内容从此存在于客户端回放的对话历史里，重复发送会使提示词逐轮膨胀。
func (d *Dispatcher) handleConversational(ctx context.Context, session *Session) (string, error) {
	resp, err := d.ai.SendMessage(ctx, session.Context())
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "对话生成失败")
	}
	session.ClearContext()
	return resp.Text, nil
}

// record 尽力而为地落一条审计记录，失败只记日志。
func (d *Dispatcher) record(ctx context.Context, sessionID, message, reply, intent string) {
	if d.repo == nil {
		return
	}
	err := d.repo.Create(ctx, &mysql.Exchange{
		SessionID:   sessionID,
		UserMessage: message,
		Response:    reply,
		Intent:      intent,
		CreatedAt:   time.Now().Unix(),
	})
	if err != nil {
		d.log.Warn("写入对话审计记录失败", "session", sessionID, "error", err)
	}
}

// publish 尽力而为地发布事件，失败只记日志。
func (d *Dispatcher) publish(ctx context.Context, sessionID, kind, txHash, token, detail string) {
	event := events.Event{
		SessionID: sessionID,
		Kind:      kind,
		TxHash:    txHash,
		Token:     token,
		Detail:    detail,
		At:        time.Now().UTC(),
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.log.Warn("发布事件失败", "session", sessionID, "kind", kind, "error", err)
	}
}
