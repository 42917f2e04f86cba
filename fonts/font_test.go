package fonts_test

import (
	"math"
	"testing"

	"github.com/ByLCY/adsmith/fonts"
)

func loadRegular(t *testing.T) *fonts.Font {
	t.Helper()
	data, err := fonts.Builtin(fonts.Regular)
	if err != nil {
		t.Fatal(err)
	}
	f, err := fonts.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func TestMetricsScaleWithSize(t *testing.T) {
	f := loadRegular(t)
	m := f.Metrics()
	if m.UnitsPerEm <= 0 || m.Ascender <= 0 || m.Descender >= 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	a10, a20 := f.Ascent(10), f.Ascent(20)
	if math.Abs(a20-2*a10) > 1e-9 {
		t.Fatalf("ascent should scale linearly: %v vs %v", a10, a20)
	}
	if got, want := f.LineHeight(32), f.Ascent(32)+f.Descent(32); math.Abs(got-want) > 1e-9 {
		t.Fatalf("line height = %v, want %v", got, want)
	}
}

func TestAdvanceGrowsWithText(t *testing.T) {
	f := loadRegular(t)
	if f.Advance("", 24) != 0 {
		t.Fatalf("empty text should have zero advance")
	}
	one := f.Advance("a", 24)
	two := f.Advance("aa", 24)
	if one <= 0 || two <= one {
		t.Fatalf("advance not increasing: %v, %v", one, two)
	}
	if big := f.Advance("a", 48); math.Abs(big-2*one) > 0.1 {
		t.Fatalf("advance should scale with size: %v vs %v", big, one)
	}
}

func TestOutlineCommands(t *testing.T) {
	f := loadRegular(t)
	out, err := f.Outline("Ob", 10, 50, 40)
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	if len(out) == 0 || out[0].Op != fonts.MoveTo {
		t.Fatalf("outline should start with MoveTo, got %v", out)
	}
	if out[len(out)-1].Op != fonts.Close {
		t.Fatalf("outline should end with Close")
	}
	var moves, closes int
	for _, cmd := range out {
		switch cmd.Op {
		case fonts.MoveTo:
			moves++
		case fonts.Close:
			closes++
		}
	}
	if moves != closes {
		t.Fatalf("every contour must be closed: %d moves, %d closes", moves, closes)
	}
	// "O" 有内外两个轮廓
	if moves < 3 {
		t.Fatalf("expected at least 3 contours, got %d", moves)
	}
	for _, cmd := range out {
		if cmd.Op == fonts.MoveTo && cmd.Points[0].X < 10 {
			t.Fatalf("contour starts left of origin: %+v", cmd.Points[0])
		}
	}
}

func TestOutlineSpaceHasNoContours(t *testing.T) {
	f := loadRegular(t)
	out, err := f.Outline(" ", 0, 0, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("space should produce no commands, got %d", len(out))
	}
}
