package fonts

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Metrics 以字体单位记录全局度量，Descender 按字体惯例为负值。
type Metrics struct {
	UnitsPerEm float64 `json:"unitsPerEm"`
	Ascender   float64 `json:"ascender"`
	Descender  float64 `json:"descender"`
}

// Op 是轮廓命令的类型。
type Op uint8

const (
	MoveTo Op = iota
	LineTo
	QuadTo
	CubeTo
	Close
)

func (op Op) String() string {
	switch op {
	case MoveTo:
		return "M"
	case LineTo:
		return "L"
	case QuadTo:
		return "Q"
	case CubeTo:
		return "C"
	case Close:
		return "Z"
	default:
		return "?"
	}
}

// Point 使用像素坐标，y 轴向下。
type Point struct {
	X float64
	Y float64
}

// Command 是一条轮廓命令。QuadTo 使用 Points[0..1]，CubeTo 使用 Points[0..2]，
// MoveTo/LineTo 只使用 Points[0]，Close 不带参数。
type Command struct {
	Op     Op
	Points [3]Point
}

// Outline 是一段文本的完整轮廓命令序列。
type Outline []Command

// Font wraps a parsed sfnt font program. It is safe for concurrent use.
type Font struct {
	Path    string
	Family  string
	Variant Variant

	program *sfnt.Font
	metrics Metrics
	bufs    sync.Pool
}

// Parse 解析 TTF/OTF 字节数据。
func Parse(data []byte) (*Font, error) {
	program, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体失败: %w", err)
	}
	upem := program.UnitsPerEm()
	if upem <= 0 {
		return nil, fmt.Errorf("字体 unitsPerEm 无效: %d", upem)
	}
	var buf sfnt.Buffer
	// ppem 取 unitsPerEm 时，度量值即为字体单位。
	m, err := program.Metrics(&buf, fixed.I(int(upem)), font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("读取字体度量失败: %w", err)
	}
	f := &Font{
		program: program,
		metrics: Metrics{
			UnitsPerEm: float64(upem),
			Ascender:   fromFixed(m.Ascent),
			Descender:  -math.Abs(fromFixed(m.Descent)),
		},
	}
	f.bufs.New = func() any { return new(sfnt.Buffer) }
	return f, nil
}

// Metrics returns the font-unit metrics.
func (f *Font) Metrics() Metrics { return f.metrics }

// Ascent 返回字号 size 下基线以上的高度（像素）。
func (f *Font) Ascent(size float64) float64 {
	return f.metrics.Ascender * size / f.metrics.UnitsPerEm
}

// Descent 返回字号 size 下基线以下的高度（像素，正值）。
func (f *Font) Descent(size float64) float64 {
	return math.Abs(f.metrics.Descender) * size / f.metrics.UnitsPerEm
}

// LineHeight is ascent plus descent at size.
func (f *Font) LineHeight(size float64) float64 {
	return f.Ascent(size) + f.Descent(size)
}

// Advance measures the horizontal advance of text at size, kerning included.
func (f *Font) Advance(text string, size float64) float64 {
	if text == "" || size <= 0 {
		return 0
	}
	buf := f.bufs.Get().(*sfnt.Buffer)
	defer f.bufs.Put(buf)

	ppem := toFixed(size)
	var (
		total   fixed.Int26_6
		prev    sfnt.GlyphIndex
		hasPrev bool
	)
	for _, r := range text {
		gi, err := f.program.GlyphIndex(buf, r)
		if err != nil {
			continue
		}
		if hasPrev {
			if k, err := f.program.Kern(buf, prev, gi, ppem, font.HintingNone); err == nil {
				total += k
			}
		}
		if adv, err := f.program.GlyphAdvance(buf, gi, ppem, font.HintingNone); err == nil {
			total += adv
		}
		prev, hasPrev = gi, true
	}
	return fromFixed(total)
}

// Outline 返回以 (x, y) 为起点基线的文本轮廓。每个轮廓以 MoveTo 开始、以 Close 结束。
func (f *Font) Outline(text string, x, y, size float64) (Outline, error) {
	if text == "" || size <= 0 {
		return nil, nil
	}
	buf := f.bufs.Get().(*sfnt.Buffer)
	defer f.bufs.Put(buf)

	ppem := toFixed(size)
	var (
		out     Outline
		pen     fixed.Int26_6
		prev    sfnt.GlyphIndex
		hasPrev bool
	)
	pt := func(p fixed.Point26_6) Point {
		return Point{X: x + fromFixed(pen+p.X), Y: y + fromFixed(p.Y)}
	}
	for _, r := range text {
		gi, err := f.program.GlyphIndex(buf, r)
		if err != nil {
			return nil, fmt.Errorf("查找字形 %q 失败: %w", r, err)
		}
		if hasPrev {
			if k, err := f.program.Kern(buf, prev, gi, ppem, font.HintingNone); err == nil {
				pen += k
			}
		}
		segments, err := f.program.LoadGlyph(buf, gi, ppem, nil)
		if err != nil {
			return nil, fmt.Errorf("加载字形 %q 失败: %w", r, err)
		}
		open := false
		for _, seg := range segments {
			switch seg.Op {
			case sfnt.SegmentOpMoveTo:
				if open {
					out = append(out, Command{Op: Close})
				}
				out = append(out, Command{Op: MoveTo, Points: [3]Point{pt(seg.Args[0])}})
				open = true
			case sfnt.SegmentOpLineTo:
				out = append(out, Command{Op: LineTo, Points: [3]Point{pt(seg.Args[0])}})
			case sfnt.SegmentOpQuadTo:
				out = append(out, Command{Op: QuadTo, Points: [3]Point{pt(seg.Args[0]), pt(seg.Args[1])}})
			case sfnt.SegmentOpCubeTo:
				out = append(out, Command{Op: CubeTo, Points: [3]Point{pt(seg.Args[0]), pt(seg.Args[1]), pt(seg.Args[2])}})
			}
		}
		if open {
			out = append(out, Command{Op: Close})
		}
		adv, err := f.program.GlyphAdvance(buf, gi, ppem, font.HintingNone)
		if err != nil {
			return nil, fmt.Errorf("读取字形 %q 宽度失败: %w", r, err)
		}
		pen += adv
		prev, hasPrev = gi, true
	}
	return out, nil
}

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

func fromFixed(v fixed.Int26_6) float64 { return float64(v) / 64 }
