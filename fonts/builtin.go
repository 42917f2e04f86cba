package fonts

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// BuiltinFamily 是内置 Go 字体在字体目录中的子目录名。
const BuiltinFamily = "go"

var builtinFiles = []struct {
	name    string
	variant Variant
	data    []byte
}{
	{"Go-Regular.ttf", Regular, goregular.TTF},
	{"Go-Bold.ttf", Bold, gobold.TTF},
	{"Go-Italic.ttf", Italic, goitalic.TTF},
	{"Go-BoldItalic.ttf", BoldItalic, gobolditalic.TTF},
}

// Builtin 返回内置 Go 字体某个变体的字节数据。
func Builtin(v Variant) ([]byte, error) {
	for _, f := range builtinFiles {
		if f.variant == v {
			return f.data, nil
		}
	}
	return nil, fmt.Errorf("%w: builtin %s", ErrVariantNotFound, v)
}

// InstallBuiltin 将内置 Go 字体写入 root/go，已存在的文件保持不变。返回字体族目录。
func InstallBuiltin(root string) (string, error) {
	dir := filepath.Join(root, BuiltinFamily)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建字体目录 %s 失败: %w", dir, err)
	}
	for _, f := range builtinFiles {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return "", fmt.Errorf("写入内置字体 %s 失败: %w", path, err)
		}
	}
	return dir, nil
}
