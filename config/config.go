// Package config 提供宿主配置的加载、校验和热加载。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound 当配置文件不存在时返回此错误。
var ErrConfigNotFound = errors.New("config file not found")

// RemotingConfig 配置 remoting 传输服务端。
type RemotingConfig struct {
	// ListenAddr remoting 服务端的监听地址
	ListenAddr string `yaml:"listen_addr"`
}

// MetricsConfig 配置指标暴露端点。
type MetricsConfig struct {
	// Enabled 是否启用指标端点
	Enabled bool `yaml:"enabled"`
	// Addr 指标端点的监听地址
	Addr string `yaml:"addr"`
}

// ClientConfig 配置客户端代理的出站保护。
type ClientConfig struct {
	// RateQPS 出站限流的每秒令牌数，<= 0 表示不限流
	RateQPS int64 `yaml:"rate_qps"`
	// RateBurst 出站限流的突发容量
	RateBurst int64 `yaml:"rate_burst"`
	// BreakerThreshold 断路器打开的连续失败阈值
	BreakerThreshold uint64 `yaml:"breaker_threshold"`
	// BreakerOpenFor 断路器打开状态的持续时间
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// Config 是宿主的完整配置。
type Config struct {
	// Remoting remoting 传输配置
	Remoting RemotingConfig `yaml:"remoting"`
	// Metrics 指标端点配置
	Metrics MetricsConfig `yaml:"metrics"`
	// Client 客户端出站保护配置
	Client ClientConfig `yaml:"client"`
}

// Default 返回带缺省值的配置。
func Default() *Config {
	return &Config{
		Remoting: RemotingConfig{ListenAddr: ":50051"},
		Metrics:  MetricsConfig{Enabled: false, Addr: ":9090"},
		Client: ClientConfig{
			RateQPS:          0,
			RateBurst:        0,
			BreakerThreshold: 50,
			BreakerOpenFor:   30 * time.Second,
		},
	}
}

// Validate 校验配置的取值范围。
func (c *Config) Validate() error {
	if c.Remoting.ListenAddr == "" {
		return fmt.Errorf("remoting.listen_addr must not be empty")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must not be empty when metrics are enabled")
	}
	if c.Client.RateQPS < 0 {
		return fmt.Errorf("client.rate_qps must not be negative")
	}
	if c.Client.RateBurst < 0 {
		return fmt.Errorf("client.rate_burst must not be negative")
	}
	if c.Client.BreakerOpenFor < 0 {
		return fmt.Errorf("client.breaker_open_for must not be negative")
	}
	return nil
}

// Load 从 yaml 文件加载配置。
// 缺省值先行，文件覆盖缺省，VACTOR_* 环境变量覆盖文件，最后校验。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv 用 VACTOR_* 环境变量覆盖配置。
func applyEnv(cfg *Config) {
	if v := os.Getenv("VACTOR_REMOTING_LISTEN_ADDR"); v != "" {
		cfg.Remoting.ListenAddr = v
	}
	if v := os.Getenv("VACTOR_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("VACTOR_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("VACTOR_CLIENT_RATE_QPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Client.RateQPS = n
		}
	}
	if v := os.Getenv("VACTOR_CLIENT_RATE_BURST"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Client.RateBurst = n
		}
	}
	if v := os.Getenv("VACTOR_CLIENT_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Client.BreakerThreshold = n
		}
	}
	if v := os.Getenv("VACTOR_CLIENT_BREAKER_OPEN_FOR"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.BreakerOpenFor = d
		}
	}
}
