// internal/auth/ip_whitelist.go
package auth

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// IPWhitelist IP白名单，为空时允许所有IP
type IPWhitelist struct {
	cidrs []*net.IPNet
	mu    sync.RWMutex
}

// NewIPWhitelist 创建新的IP白名单
func NewIPWhitelist() *IPWhitelist {
	return &IPWhitelist{}
}

// Add 添加单个IP或CIDR
func (w *IPWhitelist) Add(entry string) error {
	ipNet, err := parseEntry(entry)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cidrs = append(w.cidrs, ipNet)
	return nil
}

// Check 检查IP是否在白名单中
func (w *IPWhitelist) Check(ip net.IP) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.cidrs) == 0 {
		return true
	}
	if ip == nil {
		return false
	}
	for _, cidr := range w.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// Entries 当前白名单条目
func (w *IPWhitelist) Entries() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.cidrs))
	for _, c := range w.cidrs {
		out = append(out, c.String())
	}
	return out
}

// Replace 原子替换全部条目
func (w *IPWhitelist) Replace(entries []string) error {
	cidrs := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		ipNet, err := parseEntry(e)
		if err != nil {
			return err
		}
		cidrs = append(cidrs, ipNet)
	}

	w.mu.Lock()
	w.cidrs = cidrs
	w.mu.Unlock()
	return nil
}

// Clear 清空白名单
func (w *IPWhitelist) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cidrs = nil
}

func parseEntry(entry string) (*net.IPNet, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("无效的CIDR %q: %w", entry, err)
		}
		return ipNet, nil
	}

	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("无效的IP %q", entry)
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// hostIP 从"host:port"中取出IP，无法解析时返回nil
func hostIP(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return net.ParseIP(host)
}
