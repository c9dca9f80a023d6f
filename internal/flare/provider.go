package flare

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	xerrors "DeFAI-Agent/internal/errors"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

const defaultGasLimit = 21000

// Config describes how to construct the Flare network provider.
type Config struct {
	RPCURL        string
	ExplorerURL   string
	ChainID       int64
	FTSOV2Address string
	GasLimit      uint64
}

// Backend mirrors the subset of ethclient methods the provider relies on,
// so tests can substitute a fake chain.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// QueuedTx 是等待用户逐字确认的交易。
type QueuedTx struct {
	Msg string
	Tx  *coretypes.Transaction
}

// Provider 封装了账户、交易队列与 FTSO 合约读取，对应对话智能体
// 需要的全部链上能力。同一进程内最多持有一个待确认交易。
type Provider struct {
	backend     Backend
	eth         *ethclient.Client
	chainID     *big.Int
	explorerURL string
	gasLimit    uint64
	ftsoAddress common.Address

	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	pending *QueuedTx
}

// NewProvider dials the configured RPC endpoint and returns a ready provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 Flare RPC 地址")
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 Flare 节点失败: %w", err)
	}

	p := newProvider(eth, cfg)
	p.eth = eth
	return p, nil
}

// NewProviderWithBackend wires an explicit backend, used by tests.
func NewProviderWithBackend(backend Backend, cfg Config) *Provider {
	return newProvider(backend, cfg)
}

func newProvider(backend Backend, cfg Config) *Provider {
	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = 14
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	ftsoAddress := strings.TrimSpace(cfg.FTSOV2Address)
	if ftsoAddress == "" {
		ftsoAddress = DefaultFTSOV2Address
	}
	return &Provider{
		backend:     backend,
		chainID:     big.NewInt(chainID),
		explorerURL: cfg.ExplorerURL,
		gasLimit:    gasLimit,
		ftsoAddress: common.HexToAddress(ftsoAddress),
	}
}

// Close releases the network connection held by the provider.
func (p *Provider) Close() {
	if p.eth != nil {
		p.eth.Close()
		p.eth = nil
	}
}

// ExplorerURL 返回区块浏览器地址。
func (p *Provider) ExplorerURL() string {
	return p.explorerURL
}

// Address 返回当前账户地址，未生成账户时为零地址。
func (p *Provider) Address() common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

// HasAccount 判断是否已生成账户。
func (p *Provider) HasAccount() bool {
	return p.Address() != (common.Address{})
}

// GenerateAccount 在内存中生成一个新账户并返回地址。
// 私钥只存在于进程内存中，不做任何持久化。
func (p *Provider) GenerateAccount() (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("生成账户失败: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	p.mu.Lock()
	p.key = key
	p.address = address
	p.mu.Unlock()

	return address, nil
}

// CreateSendFLRTx 构造一笔未签名的 FLR 转账交易。
func (p *Provider) CreateSendFLRTx(ctx context.Context, to string, amount float64) (*coretypes.Transaction, error) {
	p.mu.Lock()
	from := p.address
	p.mu.Unlock()
	if from == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeValidation, "尚未生成账户")
	}
	if !common.IsHexAddress(to) {
		return nil, xerrors.New(xerrors.CodeValidation, "目标地址不合法")
	}

	nonce, err := p.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询 nonce 失败")
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询 gas price 失败")
	}

	return coretypes.NewTransaction(nonce, common.HexToAddress(to), ToWei(amount), p.gasLimit, gasPrice, nil), nil
}

// AddTxToQueue 将交易与其原始消息存入待确认槽位。
// 槽位内最多保留一笔交易，新的预览会覆盖旧的。
func (p *Provider) AddTxToQueue(msg string, tx *coretypes.Transaction) {
	p.mu.Lock()
	p.pending = &QueuedTx{Msg: msg, Tx: tx}
	p.mu.Unlock()
}

// PendingMsg 返回待确认交易的原始消息。
func (p *Provider) PendingMsg() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return "", false
	}
	return p.pending.Msg, true
}

// SendTxInQueue 签名并广播槽位中的交易，成功后清空槽位。
// 链上拒绝以 CHAIN_REJECTION 错误码原样上抛，绝不自动重试。
func (p *Provider) SendTxInQueue(ctx context.Context) (string, error) {
	p.mu.Lock()
	queued := p.pending
	key := p.key
	p.mu.Unlock()

	if queued == nil {
		return "", xerrors.New(xerrors.CodeValidation, "队列中没有待确认交易")
	}
	if key == nil {
		return "", xerrors.New(xerrors.CodeValidation, "尚未生成账户")
	}

	signed, err := coretypes.SignTx(queued.Tx, coretypes.LatestSignerForChainID(p.chainID), key)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainRejection, err, "签名交易失败")
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainRejection, err, "交易被链上拒绝")
	}

	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()

	return signed.Hash().Hex(), nil
}

// HandleSwapToken 构造并签名一笔代币兑换交易，返回其哈希。
// 兑换流程不经过确认槽位，直接返回预览（与转账流程的不对称是刻意保留的）。
func (p *Provider) HandleSwapToken(ctx context.Context, fromToken, toToken string, amount float64) (string, error) {
	p.mu.Lock()
	from := p.address
	key := p.key
	p.mu.Unlock()
	if key == nil {
		return "", xerrors.New(xerrors.CodeValidation, "尚未生成账户")
	}

	nonce, err := p.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询 nonce 失败")
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询 gas price 失败")
	}

	value := big.NewInt(0)
	if fromToken == "FLR" {
		value = ToWei(amount)
	}
	payload := []byte(fmt.Sprintf("swap:%s:%s:%g", fromToken, toToken, amount))
	tx := coretypes.NewTransaction(nonce, common.HexToAddress(DefaultSwapRouterAddress), value, p.gasLimit*4, gasPrice, payload)

	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(p.chainID), key)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainRejection, err, "签名兑换交易失败")
	}
	return signed.Hash().Hex(), nil
}

// IsConnected 探测节点连通性。
func (p *Provider) IsConnected(ctx context.Context) bool {
	if p == nil || p.backend == nil {
		return false
	}
	_, err := p.backend.BlockNumber(ctx)
	return err == nil
}

// Reset 清空账户与待确认交易。
func (p *Provider) Reset() {
	p.mu.Lock()
	p.key = nil
	p.address = common.Address{}
	p.pending = nil
	p.mu.Unlock()
}

// ToWei 将 FLR 数量转换为 wei。
func ToWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(params.Ether)).Int(nil)
	return wei
}

// FromWei 将 wei 转换为 FLR 的十进制字符串表示。
func FromWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	flr := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return flr.Text('f', -1)
}
