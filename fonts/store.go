package fonts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
)

var (
	// ErrFamilyNotFound is returned when no family matches the requested name.
	ErrFamilyNotFound = errors.New("font family not found")
	// ErrVariantNotFound is returned when a family has no usable variant file.
	ErrVariantNotFound = errors.New("font variant not found")
)

// Variant 表示字体的字重/字形分类。
type Variant string

const (
	Regular    Variant = "regular"
	Bold       Variant = "bold"
	Italic     Variant = "italic"
	BoldItalic Variant = "bolditalic"
)

// VariantFor 根据粗体/斜体标记返回精确的变体。
func VariantFor(bold, italic bool) Variant {
	switch {
	case bold && italic:
		return BoldItalic
	case bold:
		return Bold
	case italic:
		return Italic
	default:
		return Regular
	}
}

// ClassifyVariant 按文件名（不区分大小写）归类：同时包含 bold 与 italic 优先。
func ClassifyVariant(filename string) Variant {
	name := strings.ToLower(filepath.Base(filename))
	bold := strings.Contains(name, "bold")
	italic := strings.Contains(name, "italic")
	return VariantFor(bold, italic)
}

// FormatFamilyName 将目录名转换为展示用的字体族名："open-sans" -> "Open Sans"。
func FormatFamilyName(dir string) string {
	words := strings.FieldsFunc(dir, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// Family 描述字体目录下的一个字体族。
type Family struct {
	Name     string             `json:"name"`
	Dir      string             `json:"dir"`
	Variants map[Variant]string `json:"variants"`
}

type loadedFont struct {
	font    *Font
	modTime time.Time
}

// Store discovers font families under a root directory. The scan is built on
// first use and rebuilt whenever the root directory's modification time changes.
type Store struct {
	root   string
	logger *zap.Logger

	mu       sync.RWMutex
	scanned  bool
	modTime  time.Time
	families []Family
	index    map[string]int

	fontMu sync.Mutex
	loaded map[string]loadedFont
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store rooted at dir.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:   root,
		logger: zap.NewNop(),
		loaded: map[string]loadedFont{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	sharedMu     sync.Mutex
	sharedStores = map[string]*Store{}
)

// Shared 返回进程内共享的 Store，同一目录只扫描一次。
func Shared(root string, opts ...Option) *Store {
	key := filepath.Clean(root)
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if s, ok := sharedStores[key]; ok {
		return s
	}
	s := NewStore(key, opts...)
	sharedStores[key] = s
	return s
}

// Root returns the font directory.
func (s *Store) Root() string { return s.root }

// Families lists the discovered families sorted by name.
func (s *Store) Families() ([]Family, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Family, len(s.families))
	copy(out, s.families)
	return out, nil
}

// Resolve 选择字体文件并加载。变体回退顺序：精确匹配 -> 粗体 -> 斜体 -> 常规，
// 粗体/斜体只在请求时参与回退。
func (s *Store) Resolve(family string, bold, italic bool) (*Font, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	idx, ok := s.index[normalizeKey(family)]
	var fam Family
	if ok {
		fam = s.families[idx]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFamilyNotFound, family)
	}

	candidates := []Variant{VariantFor(bold, italic)}
	if bold {
		candidates = append(candidates, Bold)
	}
	if italic {
		candidates = append(candidates, Italic)
	}
	candidates = append(candidates, Regular)

	for _, v := range candidates {
		path, ok := fam.Variants[v]
		if !ok {
			continue
		}
		f, err := s.load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s (%s)", ErrVariantNotFound, fam.Name, path)
			}
			return nil, err
		}
		f.Family = fam.Name
		f.Variant = v
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrVariantNotFound, fam.Name, VariantFor(bold, italic))
}

func (s *Store) refresh() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("读取字体目录 %s 失败: %w", s.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("字体目录 %s 不是目录", s.root)
	}
	modTime := info.ModTime()

	s.mu.RLock()
	fresh := s.scanned && s.modTime.Equal(modTime)
	s.mu.RUnlock()
	if fresh {
		return nil
	}

	families, err := scanFamilies(s.root)
	if err != nil {
		return err
	}
	index := make(map[string]int, len(families)*2)
	for i, fam := range families {
		index[normalizeKey(fam.Name)] = i
		index[normalizeKey(fam.Dir)] = i
	}

	s.mu.Lock()
	s.families = families
	s.index = index
	s.modTime = modTime
	s.scanned = true
	s.mu.Unlock()

	s.logger.Debug("font store scanned",
		zap.String("root", s.root),
		zap.Int("families", len(families)),
	)
	return nil
}

func scanFamilies(root string) ([]Family, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("扫描字体目录 %s 失败: %w", root, err)
	}
	var families []Family
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("扫描字体族 %s 失败: %w", dir, err)
		}
		fam := Family{
			Name:     FormatFamilyName(entry.Name()),
			Dir:      entry.Name(),
			Variants: map[Variant]string{},
		}
		// ReadDir 已按文件名排序，同一分类取第一个文件。
		for _, file := range files {
			if file.IsDir() || !isFontFile(file.Name()) {
				continue
			}
			v := ClassifyVariant(file.Name())
			if _, exists := fam.Variants[v]; !exists {
				fam.Variants[v] = filepath.Join(dir, file.Name())
			}
		}
		if len(fam.Variants) == 0 {
			continue
		}
		families = append(families, fam)
	}
	sort.Slice(families, func(i, j int) bool { return families[i].Name < families[j].Name })
	return families, nil
}

func (s *Store) load(path string) (*Font, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	s.fontMu.Lock()
	defer s.fontMu.Unlock()
	if cached, ok := s.loaded[path]; ok && cached.modTime.Equal(info.ModTime()) {
		return cached.font.clone(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	s.loaded[path] = loadedFont{font: f, modTime: info.ModTime()}
	return f.clone(), nil
}

// clone shares the parsed program but lets callers label family/variant independently.
func (f *Font) clone() *Font {
	c := &Font{
		Path:    f.Path,
		program: f.program,
		metrics: f.metrics,
	}
	c.bufs.New = f.bufs.New
	return c
}

func isFontFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf":
		return true
	default:
		return false
	}
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
