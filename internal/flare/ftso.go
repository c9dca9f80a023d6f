package flare

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	xerrors "DeFAI-Agent/internal/errors"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DefaultFTSOV2Address 是 Flare 主网的 FTSOv2 合约地址。
const DefaultFTSOV2Address = "0xB18d3A5e5A85C65cE47f977D7F486B79F99D3d32"

// DefaultSwapRouterAddress 是默认的 DEX 路由合约地址。
const DefaultSwapRouterAddress = "0xe3A1b355ca63abCBC9589334B5e609583C7BAa06"

const ftsoV2ABI = `[{"inputs":[{"internalType":"bytes21","name":"_feedId","type":"bytes21"}],"name":"getFeedById","outputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"int8","name":"","type":"int8"},{"internalType":"uint64","name":"","type":"uint64"}],"stateMutability":"payable","type":"function"}]`

var (
	ftsoABIOnce sync.Once
	ftsoABI     abi.ABI
	ftsoABIErr  error
)

func parsedFTSOABI() (abi.ABI, error) {
	ftsoABIOnce.Do(func() {
		ftsoABI, ftsoABIErr = abi.JSON(strings.NewReader(ftsoV2ABI))
	})
	return ftsoABI, ftsoABIErr
}

// FeedValue 是 FTSOv2 合约返回的一条喂价数据。
type FeedValue struct {
	Value     *big.Int
	Decimals  int8
	Timestamp uint64
}

// GetFeedByID 读取指定 feed 的当前喂价。
// feedIDHex 形如 0x01464c522f55534400000000000000000000000000（bytes21）。
func (p *Provider) GetFeedByID(ctx context.Context, feedIDHex string) (FeedValue, error) {
	feedID, err := parseFeedID(feedIDHex)
	if err != nil {
		return FeedValue{}, xerrors.Wrap(xerrors.CodeValidation, err, "feed id 不合法")
	}

	contractABI, err := parsedFTSOABI()
	if err != nil {
		return FeedValue{}, fmt.Errorf("解析 FTSOv2 ABI 失败: %w", err)
	}
	data, err := contractABI.Pack("getFeedById", feedID)
	if err != nil {
		return FeedValue{}, fmt.Errorf("编码 getFeedById 调用失败: %w", err)
	}

	out, err := p.backend.CallContract(ctx, gethcore.CallMsg{To: &p.ftsoAddress, Data: data}, nil)
	if err != nil {
		return FeedValue{}, xerrors.Wrap(xerrors.CodeChainRejection, err, "FTSOv2 合约调用失败")
	}

	values, err := contractABI.Unpack("getFeedById", out)
	if err != nil {
		return FeedValue{}, xerrors.Wrap(xerrors.CodeChainRejection, err, "解码 getFeedById 返回值失败")
	}
	if len(values) != 3 {
		return FeedValue{}, xerrors.New(xerrors.CodeChainRejection, "getFeedById 返回值数量异常")
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return FeedValue{}, xerrors.New(xerrors.CodeChainRejection, "getFeedById 价格字段类型异常")
	}
	decimals, ok := values[1].(int8)
	if !ok {
		return FeedValue{}, xerrors.New(xerrors.CodeChainRejection, "getFeedById 精度字段类型异常")
	}
	timestamp, ok := values[2].(uint64)
	if !ok {
		return FeedValue{}, xerrors.New(xerrors.CodeChainRejection, "getFeedById 时间戳字段类型异常")
	}

	return FeedValue{Value: value, Decimals: decimals, Timestamp: timestamp}, nil
}

func parseFeedID(feedIDHex string) ([21]byte, error) {
	var feedID [21]byte
	raw := strings.TrimPrefix(strings.TrimSpace(feedIDHex), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return feedID, fmt.Errorf("解析 feed id 失败: %w", err)
	}
	if len(decoded) != len(feedID) {
		return feedID, fmt.Errorf("feed id 长度应为 21 字节，实际 %d 字节", len(decoded))
	}
	copy(feedID[:], decoded)
	return feedID, nil
}
