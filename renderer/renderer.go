package renderer

import (
	"context"

	"github.com/ByLCY/adsmith/layout"
)

// Record 是绑定到模板的一条数据记录（房源/车源字段、images 等）。
type Record = map[string]any

// Renderer 将模板与一条记录合成为最终图片。
// Render 返回编码后的二进制数据（例如 PNG 字节切片）以及可能的错误。
type Renderer interface {
	Render(ctx context.Context, tpl *layout.Template, record Record) ([]byte, error)
}
