// Package chart renders a price series into a fixed-size ASCII grid.
// The renderer is a pure function: identical input and dimensions always
// produce byte-identical output.
package chart

import (
	"fmt"
	"strings"
)

const (
	// DefaultWidth 与 DefaultHeight 是对话回复中图表的默认尺寸。
	DefaultWidth  = 20
	DefaultHeight = 10
)

var timeLabels = []string{"5d", "3d", "1d", "Now"}

// Render 将按时间从旧到新排列的价格序列绘制成 ASCII 散点图。
// 空序列返回 nil。
func Render(prices []float64, width, height int) []string {
	if len(prices) == 0 {
		return nil
	}
	if width <= 2 {
		width = DefaultWidth
	}
	if height <= 2 {
		height = DefaultHeight
	}

	minPrice, maxPrice := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < minPrice {
			minPrice = p
		}
		if p > maxPrice {
			maxPrice = p
		}
	}

	// 波动越小留白越大（5%~15%），让接近水平的曲线仍然可见。
	priceRange := maxPrice - minPrice
	paddingPercent := 0.05
	if maxPrice != 0 {
		paddingPercent = clamp(1-priceRange/maxPrice, 0.05, 0.15)
	}
	padding := priceRange * paddingPercent
	minPrice -= padding
	maxPrice += padding
	priceRange = maxPrice - minPrice
	if priceRange == 0 {
		priceRange = 1
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	// 坐标轴行列保留，数据点不会覆盖。
	for i := 0; i < height; i++ {
		grid[i][0] = '│'
	}
	for i := 0; i < width; i++ {
		grid[height-1][i] = '─'
	}
	grid[height-1][0] = '└'

	for i, price := range prices {
		x := 1
		if len(prices) > 1 {
			x = 1 + int(float64(i)/float64(len(prices)-1)*float64(width-2))
		}
		y := int((price - minPrice) / priceRange * float64(height-2))
		row := height - 2 - y
		if row >= 0 && row < height-1 && x > 0 && x < width {
			grid[row][x] = '•'
		}
	}

	chart := make([]string, 0, height+1)
	priceInterval := priceRange / float64(height-2)
	for i := 0; i < height-1; i++ {
		label := formatPrice(maxPrice - float64(i)*priceInterval)
		chart = append(chart, fmt.Sprintf("%8s %s", label, string(grid[i])))
	}
	chart = append(chart, strings.Repeat(" ", 9)+string(grid[height-1]))
	chart = append(chart, renderTimeAxis(width))
	return chart
}

func renderTimeAxis(width int) string {
	var line strings.Builder
	line.WriteString(strings.Repeat(" ", 9))
	spacing := (width - 1) / len(timeLabels)
	for i, label := range timeLabels {
		pos := 1 + i*spacing
		for line.Len() < pos+9 {
			line.WriteByte(' ')
		}
		line.WriteString(label)
	}
	return line.String()
}

func formatPrice(price float64) string {
	abs := price
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("$%.1fM", price/1_000_000)
	case abs >= 1000:
		return fmt.Sprintf("$%.1fK", price/1000)
	default:
		return fmt.Sprintf("$%.2f", price)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
