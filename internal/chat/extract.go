package chat

import (
	"regexp"
	"strconv"
)

var (
	amountPattern  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}\b`)
	// swapPattern 区分大小写：代币符号必须是大写字母。
	swapPattern = regexp.MustCompile(`^.*?(\d+(?:\.\d+)?)\s+([A-Z]+).*?\b([A-Z]+)\b`)
)

// ExtractAmount 返回文本中第一个十进制数。
func ExtractAmount(text string) (float64, bool) {
	match := amountPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

// ExtractAddress 返回文本中第一个形如 0x+40 位十六进制的地址。
func ExtractAddress(text string) (string, bool) {
	match := addressPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return match, true
}

// SwapRequest 是从文本中解析出的兑换请求。
type SwapRequest struct {
	Amount    float64
	FromToken string
	ToToken   string
}

// ExtractSwap 解析 "<数量> <TOKEN_A> … <TOKEN_B>" 形式的兑换请求。
func ExtractSwap(text string) (SwapRequest, bool) {
	match := swapPattern.FindStringSubmatch(text)
	if match == nil {
		return SwapRequest{}, false
	}
	amount, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return SwapRequest{}, false
	}
	return SwapRequest{Amount: amount, FromToken: match[2], ToToken: match[3]}, true
}
