// internal/tracer/config.go
package tracer

import (
	"sort"
	"sync"
)

// Config 协议跟踪配置
type Config struct {
	Enabled      bool     `yaml:"enabled"`
	ParseContent bool     `yaml:"parse_content"` // 解码并记录短信内容
	Numbers      []string `yaml:"numbers"`       // 为空时跟踪全部号码
	MaxRecent    int      `yaml:"max_recent"`    // 内存中保留的条数
}

// Settings 运行时可调整的跟踪设置
type Settings struct {
	Enabled      bool     `json:"enabled"`
	ParseContent bool     `json:"parse_content"`
	Numbers      []string `json:"numbers"`
}

// filter 跟踪开关和号码表，可在运行中修改
type filter struct {
	mu           sync.RWMutex
	enabled      bool
	parseContent bool
	numbers      map[string]bool
}

func newFilter(cfg Config) *filter {
	f := &filter{
		enabled:      cfg.Enabled,
		parseContent: cfg.ParseContent,
		numbers:      make(map[string]bool, len(cfg.Numbers)),
	}
	for _, n := range cfg.Numbers {
		if n != "" {
			f.numbers[n] = true
		}
	}
	return f
}

func (f *filter) addNumber(number string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.numbers[number] = true
}

func (f *filter) removeNumber(number string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.numbers[number] {
		return false
	}
	delete(f.numbers, number)
	return true
}

// match 号码表为空时全部匹配，否则源或目的号码任一在表中即可
func (f *filter) match(addrs ...string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.enabled {
		return false
	}
	if len(f.numbers) == 0 {
		return true
	}
	for _, a := range addrs {
		if a != "" && f.numbers[a] {
			return true
		}
	}
	return false
}

func (f *filter) isEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

func (f *filter) filtering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.numbers) > 0
}

func (f *filter) contentEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.parseContent
}

func (f *filter) settings() Settings {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Settings{
		Enabled:      f.enabled,
		ParseContent: f.parseContent,
		Numbers:      make([]string, 0, len(f.numbers)),
	}
	for n := range f.numbers {
		s.Numbers = append(s.Numbers, n)
	}
	sort.Strings(s.Numbers)
	return s
}

func (f *filter) apply(s Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enabled = s.Enabled
	f.parseContent = s.ParseContent
	f.numbers = make(map[string]bool, len(s.Numbers))
	for _, n := range s.Numbers {
		if n != "" {
			f.numbers[n] = true
		}
	}
}
