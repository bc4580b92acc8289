// internal/auth/authenticator.go  认证器
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"smppgw/pkg/logger"
)

// 认证失败原因
var (
	ErrUnknownSystemID = errors.New("未知的系统ID")
	ErrInvalidPassword = errors.New("密码错误")
	ErrIPNotAllowed    = errors.New("IP不允许连接")
	ErrNoDatabase      = errors.New("数据库连接未初始化")
)

// Authenticator 认证器
type Authenticator struct {
	db             *sql.DB
	accounts       map[string]*Account
	useIPWhitelist bool
	ipWhitelist    *IPWhitelist
	limiter        *RateLimiter
	log            *logger.Logger
	mu             sync.RWMutex
}

// NewAuthenticator 创建新的认证器，db可以为nil
func NewAuthenticator(db *sql.DB, useIPWhitelist bool) *Authenticator {
	return &Authenticator{
		db:             db,
		accounts:       make(map[string]*Account),
		useIPWhitelist: useIPWhitelist,
		ipWhitelist:    NewIPWhitelist(),
		limiter:        NewRateLimiter(),
		log:            logger.Named("auth"),
	}
}

// RegisterAccount 注册账户
func (a *Authenticator) RegisterAccount(account *Account) {
	a.mu.Lock()
	a.accounts[account.SystemID] = account
	a.mu.Unlock()
	a.limiter.SetLimit(account.SystemID, account.FlowControl)
}

// RemoveAccount 移除内存中的账户
func (a *Authenticator) RemoveAccount(systemID string) bool {
	a.mu.Lock()
	_, ok := a.accounts[systemID]
	delete(a.accounts, systemID)
	a.mu.Unlock()
	a.limiter.Remove(systemID)
	return ok
}

// GetAccount 获取账户信息
func (a *Authenticator) GetAccount(systemID string) (*Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	account, ok := a.accounts[systemID]
	return account, ok
}

// Accounts 按系统ID排序的全部账户
func (a *Authenticator) Accounts() []*Account {
	a.mu.RLock()
	out := make([]*Account, 0, len(a.accounts))
	for _, acc := range a.accounts {
		out = append(out, acc)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SystemID < out[j].SystemID })
	return out
}

// Whitelist 获取IP白名单
func (a *Authenticator) Whitelist() *IPWhitelist { return a.ipWhitelist }

// Limiter 获取账户限流器
func (a *Authenticator) Limiter() *RateLimiter { return a.limiter }

// Authenticate 验证身份，失败时返回的错误可用errors.Is区分原因
func (a *Authenticator) Authenticate(systemID, password string, clientIP net.IP) (*Account, error) {
	account, ok := a.GetAccount(systemID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSystemID, systemID)
	}
	if account.Password != password {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPassword, systemID)
	}

	if a.useIPWhitelist && !a.ipWhitelist.Check(clientIP) {
		return nil, fmt.Errorf("%w: %s 不在白名单中", ErrIPNotAllowed, clientIP)
	}

	if len(account.IPAddresses) > 0 {
		if !a.accountAllows(account, clientIP) {
			return nil, fmt.Errorf("%w: 账户 %s 不允许从 %s 连接", ErrIPNotAllowed, systemID, clientIP)
		}
	}

	return account, nil
}

// accountAllows 账户配置了IP时，只允许这些IP或网段
func (a *Authenticator) accountAllows(account *Account, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, entry := range account.IPAddresses {
		ipNet, err := parseEntry(entry)
		if err != nil {
			a.log.Warning("账户 %s 的IP配置无效: %v", account.SystemID, err)
			continue
		}
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// LoadAccountsFromDB 从数据库加载账户和白名单，成功后整体替换内存中的账户
func (a *Authenticator) LoadAccountsFromDB(ctx context.Context) error {
	if a.db == nil {
		return ErrNoDatabase
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT system_id, password, system_type, flow_control, max_sessions
		FROM esme_accounts
		WHERE is_active = 1
	`)
	if err != nil {
		return fmt.Errorf("查询账户失败: %w", err)
	}

	accounts := make(map[string]*Account)
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.SystemID, &acc.Password, &acc.SystemType, &acc.FlowControl, &acc.MaxSessions); err != nil {
			rows.Close()
			return fmt.Errorf("扫描账户数据失败: %w", err)
		}
		accounts[acc.SystemID] = &acc
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("遍历账户失败: %w", err)
	}

	for _, acc := range accounts {
		ips, err := a.queryStrings(ctx, "SELECT ip_address FROM account_ips WHERE system_id = ?", acc.SystemID)
		if err != nil {
			return fmt.Errorf("查询账户IP限制失败: %w", err)
		}
		acc.IPAddresses = ips
	}

	cidrs, err := a.queryStrings(ctx, "SELECT cidr FROM ip_whitelist")
	if err != nil {
		return fmt.Errorf("查询IP白名单失败: %w", err)
	}
	if err := a.ipWhitelist.Replace(cidrs); err != nil {
		return err
	}

	a.mu.Lock()
	old := a.accounts
	a.accounts = accounts
	a.mu.Unlock()

	for id := range old {
		if _, ok := accounts[id]; !ok {
			a.limiter.Remove(id)
		}
	}
	for _, acc := range accounts {
		a.limiter.SetLimit(acc.SystemID, acc.FlowControl)
	}

	a.log.Info("从数据库加载了%d个账户", len(accounts))
	return nil
}

func (a *Authenticator) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveAccount 保存账户到数据库并更新内存
func (a *Authenticator) SaveAccount(ctx context.Context, account *Account) error {
	if a.db == nil {
		a.RegisterAccount(account)
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO esme_accounts (system_id, password, system_type, flow_control, max_sessions, is_active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE password = VALUES(password), system_type = VALUES(system_type),
			flow_control = VALUES(flow_control), max_sessions = VALUES(max_sessions), is_active = 1
	`, account.SystemID, account.Password, account.SystemType, account.FlowControl, account.MaxSessions)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("保存账户失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM account_ips WHERE system_id = ?", account.SystemID); err != nil {
		tx.Rollback()
		return fmt.Errorf("删除现有IP绑定失败: %w", err)
	}
	for _, ip := range account.IPAddresses {
		if _, err := tx.ExecContext(ctx, "INSERT INTO account_ips (system_id, ip_address) VALUES (?, ?)", account.SystemID, ip); err != nil {
			tx.Rollback()
			return fmt.Errorf("插入IP绑定失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	a.RegisterAccount(account)
	return nil
}

// DeleteAccount 从数据库和内存中删除账户
func (a *Authenticator) DeleteAccount(ctx context.Context, systemID string) error {
	if a.db != nil {
		if _, err := a.db.ExecContext(ctx, "DELETE FROM account_ips WHERE system_id = ?", systemID); err != nil {
			return fmt.Errorf("删除账户IP失败: %w", err)
		}
		if _, err := a.db.ExecContext(ctx, "DELETE FROM esme_accounts WHERE system_id = ?", systemID); err != nil {
			return fmt.Errorf("删除账户失败: %w", err)
		}
	}
	if !a.RemoveAccount(systemID) && a.db == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSystemID, systemID)
	}
	return nil
}
