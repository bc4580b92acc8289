// internal/database/migration.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"smppgw/pkg/logger"
)

// Migration 数据库迁移
type Migration struct {
	ID   int
	Name string
	SQL  string
}

// Migrations 按ID顺序执行；ID 1 建立初始表结构
var Migrations = []Migration{
	{ID: 1, Name: "create_initial_tables"},
	{
		ID:   2,
		Name: "add_account_max_sessions",
		SQL:  "ALTER TABLE esme_accounts ADD COLUMN max_sessions INT NOT NULL DEFAULT 0 AFTER flow_control;",
	},
}

// Migrate 执行未应用的迁移
func Migrate(ctx context.Context, db *sql.DB) error {
	log := logger.Named("database")

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`); err != nil {
		return fmt.Errorf("创建migrations表失败: %w", err)
	}

	for _, m := range Migrations {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE id = ?", m.ID).Scan(&count); err != nil {
			return fmt.Errorf("检查迁移状态失败: %w", err)
		}
		if count > 0 {
			continue
		}

		log.Info("执行迁移: %s", m.Name)
		if m.ID == 1 {
			if err := CreateTables(ctx, db); err != nil {
				return err
			}
		} else if m.SQL != "" {
			if _, err := db.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("执行迁移%d失败: %w", m.ID, err)
			}
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO migrations (id, name) VALUES (?, ?)", m.ID, m.Name); err != nil {
			return fmt.Errorf("记录迁移状态失败: %w", err)
		}
	}
	return nil
}
