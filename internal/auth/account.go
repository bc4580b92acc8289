// internal/auth/account.go
package auth

import (
	"context"
	"time"

	"smppgw/pkg/logger"
)

// Account ESME账户
type Account struct {
	SystemID    string   `json:"system_id" yaml:"system_id"`
	Password    string   `json:"-" yaml:"password"`
	SystemType  string   `json:"system_type" yaml:"system_type"`
	FlowControl int      `json:"flow_control" yaml:"flow_control"` // 每秒提交上限，0为不限制
	MaxSessions int      `json:"max_sessions" yaml:"max_sessions"` // 同时绑定的会话上限，0为不限制
	IPAddresses []string `json:"ip_addresses" yaml:"ip_addresses"`
}

// AccountManager 定期从数据库重新加载账户
type AccountManager struct {
	authenticator  *Authenticator
	reloadInterval time.Duration
	log            *logger.Logger
	done           chan struct{}
}

// NewAccountManager 创建账户管理器
func NewAccountManager(authenticator *Authenticator, reloadInterval time.Duration) *AccountManager {
	return &AccountManager{
		authenticator:  authenticator,
		reloadInterval: reloadInterval,
		log:            logger.Named("auth"),
		done:           make(chan struct{}),
	}
}

// Start 初始加载，之后按间隔重新加载
func (m *AccountManager) Start(ctx context.Context) error {
	if err := m.authenticator.LoadAccountsFromDB(ctx); err != nil {
		return err
	}
	if m.reloadInterval > 0 {
		go m.reloadLoop()
	}
	return nil
}

// Stop 停止账户管理器
func (m *AccountManager) Stop() {
	close(m.done)
}

func (m *AccountManager) reloadLoop() {
	ticker := time.NewTicker(m.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.reloadInterval)
			if err := m.authenticator.LoadAccountsFromDB(ctx); err != nil {
				// 保留旧账户继续服务
				m.log.Error("重新加载账户失败: %v", err)
			}
			cancel()
		case <-m.done:
			return
		}
	}
}
