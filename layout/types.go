package layout

// 该文件定义排版结果与颜色，供合成器、渲染报告与调试 JSON 共用。

// Color 采用 0-255 的 RGBA 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
	A int `json:"a"`
}

// Black 是文本的默认颜色。
var Black = Color{A: 255}

// TextLine 表示排版后的一行文本内容及其宽度（像素）。
type TextLine struct {
	Content string  `json:"content"`
	Width   float64 `json:"width"`
}

// Block 是文本框拟合的结果：字号、各行内容与行度量。
type Block struct {
	FontSize   float64    `json:"fontSize"`
	Lines      []TextLine `json:"lines"`
	Ascent     float64    `json:"ascent"`
	Descent    float64    `json:"descent"`
	LineHeight float64    `json:"lineHeight"`
	// Overflow 为 true 表示最小字号仍放不下，文本按最小字号溢出绘制。
	Overflow bool `json:"overflow,omitempty"`
}

// TotalHeight 返回所有行的总高度。
func (b Block) TotalHeight() float64 {
	return float64(len(b.Lines)) * b.LineHeight
}

// Baseline 返回第 i 行基线相对文本框顶部的位置，整体在框内垂直居中。
func (b Block) Baseline(i int, boxHeight float64) float64 {
	startY := (boxHeight-b.TotalHeight())/2 + b.Ascent
	return startY + float64(i)*b.LineHeight
}
