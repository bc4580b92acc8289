// internal/config/config.go  配置加载
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"smppgw/internal/auth"
	"smppgw/internal/client"
	"smppgw/internal/database"
	"smppgw/internal/dispatcher"
	"smppgw/internal/protocol"
	"smppgw/internal/server"
	"smppgw/internal/session"
	"smppgw/internal/tracer"
	"smppgw/pkg/logger"
)

// Config 系统配置，时间字段在文件中以秒为单位
type Config struct {
	Version  string               `yaml:"version"`
	Log      LogConfig            `yaml:"log"`
	Session  SessionConfig        `yaml:"session"`
	Server   *server.ServerConfig `yaml:"server"`
	Client   *client.Config       `yaml:"client"`
	Dispatch dispatcher.Config    `yaml:"dispatcher"`
	Trace    tracer.Config        `yaml:"trace"`
	Auth     AuthConfig           `yaml:"auth"`
	Database *database.Config     `yaml:"database"`
	Admin    AdminConfig          `yaml:"admin"`
	Metrics  MetricsConfig        `yaml:"metrics"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `yaml:"level"`
	Output   string `yaml:"output"` // console、file或both
	FilePath string `yaml:"file_path"`
	Color    bool   `yaml:"color"`
}

// SessionConfig 会话参数，服务端和客户端共用
type SessionConfig struct {
	InterfaceVersion     int           `yaml:"interface_version"` // 0x33或0x34
	MaxFrameSize         uint32        `yaml:"max_frame_size"`
	ProcessorDegree      int           `yaml:"processor_degree"`
	ProcessorQueueSize   int           `yaml:"processor_queue_size"`
	MaxPending           int           `yaml:"max_pending"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	DrainTimeout         time.Duration `yaml:"drain_timeout"`
	EnquireLinkInterval  time.Duration `yaml:"enquire_link_interval"`
	EnquireLinkTimeout   time.Duration `yaml:"enquire_link_timeout"`
	MaxEnquireLinkMisses int           `yaml:"max_enquire_link_misses"`
	DisableEnquireLink   bool          `yaml:"disable_enquire_link"`
	CloseOnBindReject    bool          `yaml:"close_on_bind_reject"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	IPWhitelist    bool           `yaml:"ip_whitelist"`
	Whitelist      []string       `yaml:"whitelist"`
	ReloadInterval time.Duration  `yaml:"reload_interval"` // 从数据库重新加载账户的间隔
	Accounts       []auth.Account `yaml:"accounts"`        // 未启用数据库时使用
}

// AdminUser 管理接口用户
type AdminUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"` // admin或viewer
}

// AdminConfig 管理接口配置
type AdminConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ListenAddr string        `yaml:"listen_addr"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	Users      []AdminUser   `yaml:"users"`
	Debug      bool          `yaml:"debug"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	ReportInterval time.Duration `yaml:"report_interval"` // 0表示不输出到日志
}

// Default 默认配置
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析YAML配置
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.convertSeconds()
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// convertSeconds 将时间单位从秒转换为time.Duration
func (c *Config) convertSeconds() {
	s := &c.Session
	s.RequestTimeout = seconds(s.RequestTimeout)
	s.WriteTimeout = seconds(s.WriteTimeout)
	s.DrainTimeout = seconds(s.DrainTimeout)
	s.EnquireLinkInterval = seconds(s.EnquireLinkInterval)
	s.EnquireLinkTimeout = seconds(s.EnquireLinkTimeout)

	if c.Server != nil {
		c.Server.BindTimeout = seconds(c.Server.BindTimeout)
	}
	if c.Client != nil {
		c.Client.DialTimeout = seconds(c.Client.DialTimeout)
		c.Client.BindTimeout = seconds(c.Client.BindTimeout)
		c.Client.ReconnectInterval = seconds(c.Client.ReconnectInterval)
	}
	if c.Database != nil {
		c.Database.ConnMaxLifetime = seconds(c.Database.ConnMaxLifetime)
	}
	c.Dispatch.DeliveryDelay = seconds(c.Dispatch.DeliveryDelay)
	c.Dispatch.DeliverTimeout = seconds(c.Dispatch.DeliverTimeout)
	c.Dispatch.Retention = seconds(c.Dispatch.Retention)
	c.Auth.ReloadInterval = seconds(c.Auth.ReloadInterval)
	c.Admin.TokenTTL = seconds(c.Admin.TokenTTL)
	c.Metrics.ReportInterval = seconds(c.Metrics.ReportInterval)
}

func seconds(d time.Duration) time.Duration {
	return d * time.Second
}

// applyDefaults 为未配置的项设置默认值
func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Output == "" {
		c.Log.Output = "console"
	}

	if c.Server == nil {
		c.Server = &server.ServerConfig{}
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = "0.0.0.0:2775"
	}
	if c.Server.SystemID == "" {
		c.Server.SystemID = "smppgw"
	}
	if c.Server.BindTimeout <= 0 {
		c.Server.BindTimeout = 30 * time.Second
	}
	c.Server.Session = c.Session.Build(session.RoleSMSC)

	if c.Client == nil {
		c.Client = &client.Config{}
	}
	if c.Client.Address == "" {
		c.Client.Address = "127.0.0.1:2775"
	}
	if c.Client.BindType == "" {
		c.Client.BindType = "trx"
	}
	c.Client.Session = c.Session.Build(session.RoleESME)

	if c.Database == nil {
		c.Database = database.NewConfig()
	} else if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}

	if c.Trace.MaxRecent <= 0 {
		c.Trace.MaxRecent = 1000
	}

	if c.Auth.ReloadInterval <= 0 {
		c.Auth.ReloadInterval = 5 * time.Minute
	}

	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = "127.0.0.1:8080"
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 24 * time.Hour
	}
}

// Validate 检查配置
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("log.output: 无效的输出 %q", c.Log.Output)
	}
	switch protocol.InterfaceVersion(c.Session.InterfaceVersion) {
	case 0, protocol.IF_VERSION_33, protocol.IF_VERSION_34:
	default:
		return fmt.Errorf("session.interface_version: 不支持的版本 %#x", c.Session.InterfaceVersion)
	}
	if _, err := client.ParseBindType(c.Client.BindType); err != nil {
		return fmt.Errorf("client.bind_type: %w", err)
	}
	if c.Admin.Enabled && c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret: 启用管理接口时必须配置")
	}
	for i, r := range c.Dispatch.Routes {
		if r.Prefix == "" || r.SystemID == "" {
			return fmt.Errorf("dispatcher.routes[%d]: prefix和system_id不能为空", i)
		}
	}
	for _, entry := range c.Auth.Whitelist {
		if err := auth.NewIPWhitelist().Add(entry); err != nil {
			return fmt.Errorf("auth.whitelist: %w", err)
		}
	}
	return nil
}

// LoggerConfig 转换为日志库配置
func (c LogConfig) LoggerConfig() (logger.LogConfig, error) {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		return logger.LogConfig{}, err
	}
	lc := logger.DefaultConfig()
	lc.Level = level
	lc.Output = c.Output
	lc.FilePath = c.FilePath
	lc.EnableColor = c.Color
	return lc, nil
}

// Build 在会话默认值上覆盖已配置的项
func (c SessionConfig) Build(role session.Role) session.Config {
	cfg := session.DefaultConfig(role)
	if c.InterfaceVersion != 0 {
		cfg.InterfaceVersion = protocol.InterfaceVersion(c.InterfaceVersion)
	}
	if c.MaxFrameSize != 0 {
		cfg.MaxFrameSize = c.MaxFrameSize
	}
	if c.ProcessorDegree > 0 {
		cfg.ProcessorDegree = c.ProcessorDegree
	}
	if c.ProcessorQueueSize > 0 {
		cfg.ProcessorQueueSize = c.ProcessorQueueSize
	}
	if c.MaxPending > 0 {
		cfg.MaxPending = c.MaxPending
	}
	if c.RequestTimeout > 0 {
		cfg.RequestTimeout = c.RequestTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.DrainTimeout > 0 {
		cfg.DrainTimeout = c.DrainTimeout
	}
	if c.EnquireLinkInterval > 0 {
		cfg.EnquireLinkInterval = c.EnquireLinkInterval
	}
	if c.DisableEnquireLink {
		cfg.EnquireLinkInterval = 0
	}
	if c.EnquireLinkTimeout > 0 {
		cfg.EnquireLinkTimeout = c.EnquireLinkTimeout
	}
	if c.MaxEnquireLinkMisses > 0 {
		cfg.MaxEnquireLinkMisses = c.MaxEnquireLinkMisses
	}
	cfg.CloseOnBindReject = c.CloseOnBindReject
	return cfg
}
