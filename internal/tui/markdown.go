package tui

import (
	"container/list"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// glamourStyles 主题对应的 glamour 样式
var glamourStyles = map[string]string{
	"classic":  "dark",
	"midnight": "dracula",
	"paper":    "light",
}

// MarkdownRenderer 把助手消息渲染为终端 Markdown，按宽度和主题缓存渲染器与结果
type MarkdownRenderer struct {
	mu       sync.Mutex
	width    int
	theme    string
	renderer *glamour.TermRenderer
	cache    *renderCache
}

// NewMarkdownRenderer 创建渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{cache: newRenderCache(256)}
}

// Render 渲染 Markdown，失败时返回原文
func (r *MarkdownRenderer) Render(content string, width int, theme string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width < 20 {
		width = 20
	}

	key := fmt.Sprintf("%d|%s|%s", width, theme, content)
	if out, ok := r.cache.get(key); ok {
		return out
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.renderer == nil || r.width != width || r.theme != theme {
		style, ok := glamourStyles[theme]
		if !ok {
			style = "dark"
		}
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		r.renderer = tr
		r.width = width
		r.theme = theme
	}

	out, err := r.renderer.Render(content)
	if err != nil {
		return content
	}
	out = strings.Trim(out, "\n")
	r.cache.add(key, out)
	return out
}

// renderCache 简单的 LRU 缓存，限制渲染结果数量
type renderCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type cacheItem struct {
	key   string
	value string
}

func newRenderCache(capacity int) *renderCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &renderCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *renderCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(cacheItem).value, true
	}
	return "", false
}

func (c *renderCache) add(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value = cacheItem{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(cacheItem{key: key, value: value})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(cacheItem).key)
		}
	}
}

func (c *renderCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
