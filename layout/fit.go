package layout

import (
	"math"
	"strings"
)

// Wrap 贪心折行：单词依次加入当前行，宽度超过 maxWidth 时另起一行。
// 超长单词独占一行，不会被拆分。
func Wrap(ts Typesetter, text string, size, maxWidth float64) []TextLine {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := make([]TextLine, 0, 4)
	current := words[0]
	currentWidth := ts.Advance(current, size)
	for _, word := range words[1:] {
		candidate := current + " " + word
		width := ts.Advance(candidate, size)
		if width <= maxWidth {
			current, currentWidth = candidate, width
			continue
		}
		lines = append(lines, TextLine{Content: current, Width: currentWidth})
		current = word
		currentWidth = ts.Advance(word, size)
	}
	return append(lines, TextLine{Content: current, Width: currentWidth})
}

// Fit 使用默认参数拟合文本框。
func Fit(ts Typesetter, text string, boxWidth, boxHeight float64) Block {
	return FitWithOptions(ts, text, boxWidth, boxHeight, DefaultFitOptions())
}

// FitWithOptions 在 [MinSize, MaxSize] 中二分查找最大的整数字号，使折行后
// 行数 × (ascent + descent) 不超过 boxHeight。找不到时使用最小字号并标记溢出。
func FitWithOptions(ts Typesetter, text string, boxWidth, boxHeight float64, opts FitOptions) Block {
	opts = opts.normalized()
	wrapWidth := boxWidth - opts.Padding

	lo, hi := opts.MinSize, opts.MaxSize
	best, found := opts.MinSize, false
	for lo <= hi {
		mid := lo + (hi-lo)/2
		size := float64(mid)
		lines := Wrap(ts, text, size, wrapWidth)
		lineHeight := ts.Ascent(size) + math.Abs(ts.Descent(size))
		if float64(len(lines))*lineHeight <= boxHeight {
			best, found = mid, true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	size := float64(best)
	ascent := ts.Ascent(size)
	descent := math.Abs(ts.Descent(size))
	return Block{
		FontSize:   size,
		Lines:      Wrap(ts, text, size, wrapWidth),
		Ascent:     ascent,
		Descent:    descent,
		LineHeight: ascent + descent,
		Overflow:   !found,
	}
}

// AlignOffset 返回一行文本相对文本框左边缘的水平偏移。
func AlignOffset(align string, boxWidth, lineWidth float64) float64 {
	switch strings.ToLower(align) {
	case "center":
		return (boxWidth - lineWidth) / 2
	case "right", "end":
		return boxWidth - lineWidth
	default:
		return 0
	}
}
