package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Agent    AgentConfig    `mapstructure:"agent"`
}

type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	APIToken      string `mapstructure:"api_token"`
	RefreshSecret string `mapstructure:"refresh_secret"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	StockResult string `mapstructure:"stock_result"`
}

type BusinessConfig struct {
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

// SyncConfig 客户端同步重试策略
// base_ms=1000 cap_ms=30000 max_exponent=5 时，
// 退避序列为 1s 2s 4s 8s 16s，之后固定 30s
type SyncConfig struct {
	BaseMs          int64 `mapstructure:"base_ms"`
	CapMs           int64 `mapstructure:"cap_ms"`
	MaxExponent     int   `mapstructure:"max_exponent"`
	IntervalSeconds int   `mapstructure:"interval_seconds"`
}

// AgentConfig 离线代理（客户端）配置
type AgentConfig struct {
	DBPath        string `mapstructure:"db_path"`
	RemoteURL     string `mapstructure:"remote_url"`
	APIToken      string `mapstructure:"api_token"`
	RefreshSecret string `mapstructure:"refresh_secret"`
	AdminPort     int    `mapstructure:"admin_port"`
	JournalCap    int    `mapstructure:"journal_cap"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	applyDefaults(config)

	GlobalConfig = config
	return config
}

func applyDefaults(c *Config) {
	if c.Sync.BaseMs <= 0 {
		c.Sync.BaseMs = 1000
	}
	if c.Sync.CapMs <= 0 {
		c.Sync.CapMs = 30000
	}
	if c.Sync.MaxExponent <= 0 {
		c.Sync.MaxExponent = 5
	}
	if c.Sync.IntervalSeconds <= 0 {
		c.Sync.IntervalSeconds = 30
	}
	if c.Agent.JournalCap <= 0 {
		c.Agent.JournalCap = 500
	}
	if c.Business.MaxRetryCount <= 0 {
		c.Business.MaxRetryCount = 5
	}
}
