package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Command   CommandConfig   `mapstructure:"command"`
	Services  ServicesConfig  `mapstructure:"services"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // sqlite, postgres
	Path            string `mapstructure:"path"`   // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
	LogSQL          bool   `mapstructure:"log_sql"`
}

// RedisConfig Redis 配置，仅用于令牌吊销列表，可关闭
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 连接模式: standalone, sentinel, cluster
	Mode string `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	ClusterAddrs  []string `mapstructure:"cluster_addrs"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AuthConfig 登录与令牌配置
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	AdminUsername  string        `mapstructure:"admin_username"`
	AdminPassword  string        `mapstructure:"admin_password"`
	AdminEmail     string        `mapstructure:"admin_email"`
}

// CommandConfig 特权命令执行配置
type CommandConfig struct {
	Shell         string        `mapstructure:"shell"`
	WorkingDir    string        `mapstructure:"working_dir"` // 为空时使用服务账号的 home 目录
	ShellTimeout  time.Duration `mapstructure:"shell_timeout"`
	StatusTimeout time.Duration `mapstructure:"status_timeout"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	OutputCap     int           `mapstructure:"output_cap"` // 返回给调用方的最大字符数
	Denylist      []string      `mapstructure:"denylist"`
	UseSudo       bool          `mapstructure:"use_sudo"`
	SudoPath      string        `mapstructure:"sudo_path"`
	SystemctlPath string        `mapstructure:"systemctl_path"`
}

// ServicesConfig 服务状态轮询配置
type ServicesConfig struct {
	Watched         []string      `mapstructure:"watched"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollConcurrency int           `mapstructure:"poll_concurrency"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"rps"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultDenylist 默认命令黑名单（大小写不敏感的子串匹配）
var DefaultDenylist = []string{"rm -rf", "mkfs", "dd if=", "format", "> /dev/", "sudo rm", "rm -f"}

var globalConfig *Config

// SetDefaults 为所有键写入默认值，空配置文件也能启动单机实例
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 60)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "dashboard.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("auth.issuer", "opsdash")
	v.SetDefault("auth.access_token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_email", "admin@localhost")

	v.SetDefault("command.shell", "/bin/sh")
	v.SetDefault("command.shell_timeout", 30*time.Second)
	v.SetDefault("command.status_timeout", 10*time.Second)
	v.SetDefault("command.action_timeout", 30*time.Second)
	v.SetDefault("command.output_cap", 500)
	v.SetDefault("command.denylist", DefaultDenylist)
	v.SetDefault("command.use_sudo", true)
	v.SetDefault("command.sudo_path", "sudo")
	v.SetDefault("command.systemctl_path", "systemctl")

	v.SetDefault("services.watched", []string{"openvpn", "squid"})
	v.SetDefault("services.poll_interval", time.Minute)
	v.SetDefault("services.poll_concurrency", 4)

	v.SetDefault("rate_limit.rps", 2.0)
	v.SetDefault("rate_limit.burst", 10)
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("/etc/opsdash")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q (可选: sqlite, postgres)", c.Database.Driver)
	}
	if c.Command.ShellTimeout <= 0 || c.Command.StatusTimeout <= 0 || c.Command.ActionTimeout <= 0 {
		return errors.New("command 超时时间必须为正数")
	}
	if c.Command.OutputCap <= 0 {
		return errors.New("command.output_cap 必须为正数")
	}
	if c.Services.PollInterval < 0 {
		return errors.New("services.poll_interval 不能为负数")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取 postgres 连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
