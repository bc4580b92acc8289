// internal/database/connection.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"smppgw/pkg/logger"
)

// ErrNotConnected 尚未连接数据库
var ErrNotConnected = errors.New("数据库未连接")

// Manager 数据库连接管理器
type Manager struct {
	config *Config
	db     *sql.DB
	mu     sync.Mutex
	log    *logger.Logger
}

// NewManager 创建数据库管理器
func NewManager(config *Config) *Manager {
	if config == nil {
		config = NewConfig()
	}
	return &Manager{
		config: config,
		log:    logger.Named("database"),
	}
}

// Connect 连接数据库并校验连通性
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return nil
	}

	db, err := sql.Open(m.config.Driver, m.config.DSN())
	if err != nil {
		return fmt.Errorf("打开数据库连接失败: %w", err)
	}

	db.SetMaxOpenConns(m.config.MaxOpenConns)
	db.SetMaxIdleConns(m.config.MaxIdleConns)
	db.SetConnMaxLifetime(m.config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("数据库连接测试失败: %w", err)
	}

	m.db = db
	m.log.Info("数据库连接成功: %s", m.config)
	return nil
}

// DB 获取数据库连接，未连接时返回nil
func (m *Manager) DB() *sql.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		return fmt.Errorf("关闭数据库连接失败: %w", err)
	}
	m.log.Info("数据库连接已关闭")
	return nil
}

// Ping 检查数据库连接状态
func (m *Manager) Ping(ctx context.Context) error {
	db := m.DB()
	if db == nil {
		return ErrNotConnected
	}
	if err := db.PingContext(ctx); err != nil {
		m.log.Error("数据库连接检查失败: %v", err)
		return err
	}
	return nil
}
