// internal/dispatcher/router.go
package dispatcher

import (
	"sort"
	"strings"
)

// Route 目的号码前缀到接收方系统ID的映射
type Route struct {
	Prefix   string `yaml:"prefix" json:"prefix"`
	SystemID string `yaml:"system_id" json:"system_id"`
}

// Router 最长前缀匹配
type Router struct {
	routes []Route
}

// NewRouter 创建路由表
func NewRouter(routes []Route) *Router {
	sorted := append([]Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Router{routes: sorted}
}

// Match 返回目的地址匹配的系统ID，没有路由时ok为false
func (r *Router) Match(addr string) (systemID string, ok bool) {
	for _, rt := range r.routes {
		if strings.HasPrefix(addr, rt.Prefix) {
			return rt.SystemID, true
		}
	}
	return "", false
}
