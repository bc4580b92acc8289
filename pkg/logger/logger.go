// pkg/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别类型
type LogLevel int

// 日志级别常量
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	CriticalLevel
	FatalLevel
)

// 日志级别名称映射
var levelNames = map[LogLevel]string{
	DebugLevel:    "DEBUG",
	InfoLevel:     "INFO",
	WarningLevel:  "WARNING",
	ErrorLevel:    "ERROR",
	CriticalLevel: "CRITICAL",
	FatalLevel:    "FATAL",
}

// String 返回级别名称
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel 解析配置中的级别名称，大小写不敏感
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "INFO":
		return InfoLevel, nil
	case "DEBUG":
		return DebugLevel, nil
	case "WARN", "WARNING":
		return WarningLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "CRITICAL":
		return CriticalLevel, nil
	case "FATAL":
		return FatalLevel, nil
	}
	return InfoLevel, fmt.Errorf("未知的日志级别: %s", name)
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别
	Level LogLevel

	// 日志格式
	Format string

	// 日志输出位置: "console", "file", "both"
	Output string

	// 日志文件路径 (当Output为"file"或"both"时)
	FilePath string

	// 是否启用调用位置信息
	EnableCaller bool

	// 是否打印时间戳
	EnableTimestamp bool

	// 是否启用颜色输出 (console)
	EnableColor bool
}

// DefaultFormat 默认日志格式
const DefaultFormat = "[%{time}] [%{level}] [%{module}] %{file}:%{line} %{message}"

// DefaultConfig 默认配置
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:           InfoLevel,
		Format:          DefaultFormat,
		Output:          "console",
		EnableCaller:    true,
		EnableTimestamp: true,
	}
}

// sink 多个模块日志器共享的输出端
type sink struct {
	mu     sync.Mutex
	out    io.Writer
	file   *os.File
	logger *log.Logger
}

func (s *sink) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Output(0, line)
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// Logger 模块日志器，同一输出端上可以派生多个模块名
type Logger struct {
	name   string
	sink   *sink
	mu     sync.RWMutex
	config LogConfig
}

// New 创建一个新的日志器实例
func New(name string, level LogLevel, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}

	cfg := DefaultConfig()
	cfg.Level = level

	return &Logger{
		name:   name,
		sink:   &sink{out: out, logger: log.New(out, "", 0)},
		config: cfg,
	}
}

// NewWithConfig 按配置创建日志器
func NewWithConfig(name string, config LogConfig) (*Logger, error) {
	if config.Format == "" {
		config.Format = DefaultFormat
	}

	s := &sink{}
	switch config.Output {
	case "file", "both":
		if config.FilePath == "" {
			return nil, fmt.Errorf("日志文件路径未指定")
		}
		file, err := openLogFile(config.FilePath)
		if err != nil {
			return nil, err
		}
		s.file = file
		s.out = file
		if config.Output == "both" {
			s.out = io.MultiWriter(os.Stderr, file)
		}
	default:
		s.out = os.Stderr
	}
	s.logger = log.New(s.out, "", 0)

	return &Logger{name: name, sink: s, config: config}, nil
}

func openLogFile(path string) (*os.File, error) {
	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("无法创建日志目录: %v", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("无法打开日志文件: %v", err)
	}
	return file, nil
}

// Named 派生一个共享输出端和级别配置的模块日志器
func (l *Logger) Named(name string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{name: name, sink: l.sink, config: l.config}
}

// Name 返回模块名
func (l *Logger) Name() string {
	return l.name
}

// SetLogLevel 设置日志级别
func (l *Logger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// Level 返回当前级别
func (l *Logger) Level() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Level
}

// Enabled 判断级别是否会被输出
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.Level()
}

// SetFormat 设置日志格式
func (l *Logger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.sink.close()
}

// 不同级别的ANSI颜色
var levelColors = map[LogLevel]string{
	DebugLevel:    "\033[36m",
	InfoLevel:     "\033[32m",
	WarningLevel:  "\033[33m",
	ErrorLevel:    "\033[31m",
	CriticalLevel: "\033[35m",
	FatalLevel:    "\033[41m",
}

// 重置ANSI颜色
const colorReset = "\033[0m"

// 格式化并记录日志，depth为相对log的调用栈深度
func (l *Logger) log(depth int, level LogLevel, format string, args ...interface{}) {
	l.mu.RLock()
	cfg := l.config
	l.mu.RUnlock()

	if level < cfg.Level {
		return
	}

	// 获取调用者信息
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)

	var message string
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	} else {
		message = format
	}

	output := cfg.Format
	if cfg.EnableTimestamp {
		output = strings.Replace(output, "%{time}", time.Now().Format("2006-01-02 15:04:05.000"), -1)
	} else {
		output = strings.Replace(output, "[%{time}] ", "", -1)
		output = strings.Replace(output, "%{time}", "", -1)
	}

	output = strings.Replace(output, "%{level}", level.String(), -1)
	output = strings.Replace(output, "%{module}", l.name, -1)

	if cfg.EnableCaller {
		output = strings.Replace(output, "%{file}", file, -1)
		output = strings.Replace(output, "%{line}", fmt.Sprintf("%d", line), -1)
	} else {
		output = strings.Replace(output, "%{file}:%{line} ", "", -1)
		output = strings.Replace(output, "%{file}:", "", -1)
		output = strings.Replace(output, "%{line}", "", -1)
	}

	output = strings.Replace(output, "%{message}", message, -1)

	if cfg.EnableColor && cfg.Output != "file" {
		if color, exists := levelColors[level]; exists {
			output = color + output + colorReset
		}
	}

	l.sink.write(output)

	if level == FatalLevel {
		os.Exit(1)
	}
}

// Debug 记录调试级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(2, DebugLevel, format, args...)
}

// Info 记录信息级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(2, InfoLevel, format, args...)
}

// Warning 记录警告级别日志
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(2, WarningLevel, format, args...)
}

// Warn 警告级别别名
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(2, WarningLevel, format, args...)
}

// Error 记录错误级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(2, ErrorLevel, format, args...)
}

// Critical 记录严重错误级别日志
func (l *Logger) Critical(format string, args ...interface{}) {
	l.log(2, CriticalLevel, format, args...)
}

// Fatal 记录致命错误并终止程序
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(2, FatalLevel, format, args...)
}

// 全局默认logger实例
var (
	defaultLogger *Logger
	loggerMu      sync.Mutex
)

// Init 初始化日志系统
func Init(name string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if defaultLogger == nil {
		defaultLogger = New(name, InfoLevel, os.Stderr)
	}
}

// InitWithConfig 使用配置初始化日志系统，替换已有的默认日志器
func InitWithConfig(name string, config LogConfig) error {
	l, err := NewWithConfig(name, config)
	if err != nil {
		return fmt.Errorf("初始化日志系统失败: %v", err)
	}

	loggerMu.Lock()
	old := defaultLogger
	defaultLogger = l
	loggerMu.Unlock()

	if old != nil && old.sink != l.sink {
		old.Close()
	}
	return nil
}

// SetOutput 把默认日志器输出重定向到w，主要用于测试
func SetOutput(w io.Writer) {
	l := GetLogger()
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out = w
	l.sink.logger = log.New(w, "", 0)
}

// GetLogger 获取默认日志器
func GetLogger() *Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if defaultLogger == nil {
		defaultLogger = New("default", InfoLevel, os.Stderr)
	}
	return defaultLogger
}

// Named 从默认日志器派生模块日志器
func Named(name string) *Logger {
	return GetLogger().Named(name)
}

// SetLevel 设置全局日志级别
func SetLevel(level LogLevel) {
	GetLogger().SetLogLevel(level)
}

// 以下是全局函数，使用默认日志器

// Debug 全局调试日志
func Debug(format string, args ...interface{}) {
	GetLogger().log(2, DebugLevel, format, args...)
}

// Info 全局信息日志
func Info(format string, args ...interface{}) {
	GetLogger().log(2, InfoLevel, format, args...)
}

// Warning 全局警告日志
func Warning(format string, args ...interface{}) {
	GetLogger().log(2, WarningLevel, format, args...)
}

// Warn 全局警告日志别名
func Warn(format string, args ...interface{}) {
	GetLogger().log(2, WarningLevel, format, args...)
}

// Error 全局错误日志
func Error(format string, args ...interface{}) {
	GetLogger().log(2, ErrorLevel, format, args...)
}

// Critical 全局严重错误日志
func Critical(format string, args ...interface{}) {
	GetLogger().log(2, CriticalLevel, format, args...)
}

// Fatal 全局致命错误日志
func Fatal(format string, args ...interface{}) {
	GetLogger().log(2, FatalLevel, format, args...)
}
