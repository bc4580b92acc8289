// internal/database/config.go
package database

import (
	"fmt"
	"time"
)

// Config 数据库配置
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	Parameters      string        `yaml:"parameters"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // 秒，加载后转换
}

// NewConfig 创建数据库配置
func NewConfig() *Config {
	return &Config{
		Driver:          "mysql",
		Host:            "localhost",
		Port:            3306,
		Username:        "root",
		Database:        "smppgw",
		Parameters:      "parseTime=true&charset=utf8mb4&loc=Local",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// DSN 获取数据源名称
func (c *Config) DSN() string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", c.Username, c.Password, c.Host, c.Port, c.Database)
	if c.Parameters != "" {
		dsn += "?" + c.Parameters
	}
	return dsn
}

// String 隐藏密码的连接描述，用于日志
func (c *Config) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.Username, c.Host, c.Port, c.Database)
}
