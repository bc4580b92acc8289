// internal/database/schema.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"smppgw/pkg/logger"
)

// 表名
const (
	TableAccounts    = "esme_accounts"
	TableAccountIPs  = "account_ips"
	TableIPWhitelist = "ip_whitelist"
	TableAdminUsers  = "admin_users"
)

type tableDef struct {
	name string
	ddl  string
}

// 初始表结构，之后的变更放在migrations里
var tables = []tableDef{
	{TableAccounts, `
		CREATE TABLE IF NOT EXISTS esme_accounts (
			id INT AUTO_INCREMENT PRIMARY KEY,
			system_id VARCHAR(16) NOT NULL,
			password VARCHAR(9) NOT NULL,
			system_type VARCHAR(13) NOT NULL DEFAULT '',
			flow_control INT NOT NULL DEFAULT 0,
			is_active BOOLEAN DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY (system_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{TableAccountIPs, `
		CREATE TABLE IF NOT EXISTS account_ips (
			id INT AUTO_INCREMENT PRIMARY KEY,
			system_id VARCHAR(16) NOT NULL,
			ip_address VARCHAR(50) NOT NULL,
			UNIQUE KEY (system_id, ip_address)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{TableIPWhitelist, `
		CREATE TABLE IF NOT EXISTS ip_whitelist (
			id INT AUTO_INCREMENT PRIMARY KEY,
			cidr VARCHAR(50) NOT NULL,
			description VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY (cidr)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{TableAdminUsers, `
		CREATE TABLE IF NOT EXISTS admin_users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(50) NOT NULL,
			password VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'viewer',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY (username)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
}

// CreateTables 创建所有表
func CreateTables(ctx context.Context, db *sql.DB) error {
	log := logger.Named("database")
	for _, t := range tables {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("创建%s表失败: %w", t.name, err)
		}
		log.Debug("%s表创建或已存在", t.name)
	}
	return nil
}
