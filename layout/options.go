package layout

// Typesetter 提供排版所需的字体度量，单位均为像素。
type Typesetter interface {
	Advance(text string, size float64) float64
	Ascent(size float64) float64
	Descent(size float64) float64
}

// 拟合参数的默认值。
const (
	DefaultMinFontSize = 8
	DefaultMaxFontSize = 200
	DefaultPadding     = 10
)

// FitOptions 控制字号搜索区间与换行宽度的内边距。
type FitOptions struct {
	MinSize int
	MaxSize int
	// Padding 从文本框宽度中扣除后作为换行宽度。
	Padding float64
}

// DefaultFitOptions returns the [8, 200] search with a 10px wrap padding.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		MinSize: DefaultMinFontSize,
		MaxSize: DefaultMaxFontSize,
		Padding: DefaultPadding,
	}
}

func (o FitOptions) normalized() FitOptions {
	if o.MinSize <= 0 {
		o.MinSize = DefaultMinFontSize
	}
	if o.MaxSize < o.MinSize {
		o.MaxSize = o.MinSize
	}
	if o.Padding < 0 {
		o.Padding = 0
	}
	return o
}
