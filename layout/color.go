package layout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var namedColors = map[string]Color{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"transparent": {0, 0, 0, 0},
}

// ParseColor 解析 #rgb、#rrggbb、#rrggbbaa、rgb()/rgba() 与常见颜色名。
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Black, nil
	}
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHexColor(s[1:])
	}
	if args, ok := functionArgs(s, "rgba"); ok {
		return parseRGBArgs(args, true)
	}
	if args, ok := functionArgs(s, "rgb"); ok {
		return parseRGBArgs(args, false)
	}
	return Color{}, fmt.Errorf("unsupported color %q", s)
}

func parseHexColor(hex string) (Color, error) {
	if len(hex) == 3 || len(hex) == 4 {
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	}
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("invalid hex color #%s", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color #%s", hex)
	}
	if len(hex) == 6 {
		return Color{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff), A: 255}, nil
	}
	return Color{R: int(v >> 24 & 0xff), G: int(v >> 16 & 0xff), B: int(v >> 8 & 0xff), A: int(v & 0xff)}, nil
}

func functionArgs(s, name string) ([]string, bool) {
	if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
		return nil, false
	}
	body := s[len(name)+1 : len(s)-1]
	parts := strings.Split(body, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, true
}

func parseRGBArgs(args []string, withAlpha bool) (Color, error) {
	want := 3
	if withAlpha {
		want = 4
	}
	if len(args) != want {
		return Color{}, fmt.Errorf("expected %d color components, got %d", want, len(args))
	}
	var comps [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return Color{}, fmt.Errorf("invalid color component %q", args[i])
		}
		comps[i] = clampByte(n)
	}
	alpha := 255
	if withAlpha {
		a, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return Color{}, fmt.Errorf("invalid alpha %q", args[3])
		}
		alpha = clampByte(a * 255)
	}
	return Color{R: comps[0], G: comps[1], B: comps[2], A: alpha}, nil
}

func clampByte(v float64) int {
	return int(math.Max(0, math.Min(255, math.Round(v))))
}
