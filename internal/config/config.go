// Package config 读取命令行参数、环境变量和配置文件
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/justa-cai/parrot-recorder/internal/device"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 PARROT_QUALITY
const EnvPrefix = "PARROT"

// 麦克风权限模式
const (
	MicrophonePrompt = "prompt"
	MicrophoneGrant  = "grant"
	MicrophoneDeny   = "deny"
)

// Config 程序配置
type Config struct {
	RecordingsDir string `mapstructure:"recordings_dir"`
	Quality       string `mapstructure:"quality"`
	Microphone    string `mapstructure:"microphone"`
	BusyGuard     bool   `mapstructure:"busy_guard"`
	RemoteAddr    string `mapstructure:"remote_addr"`
	LogLevel      string `mapstructure:"log_level"`
}

// DefaultRecordingsDir 默认录音目录
func DefaultRecordingsDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "parrot-recorder", "recordings")
	}
	return filepath.Join(os.TempDir(), "parrot-recorder", "recordings")
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("recordings_dir", DefaultRecordingsDir())
	v.SetDefault("quality", string(device.QualityHigh))
	v.SetDefault("microphone", MicrophonePrompt)
	v.SetDefault("busy_guard", true)
	v.SetDefault("remote_addr", "")
	v.SetDefault("log_level", "info")
}

// RegisterFlags 注册命令行参数
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "配置文件路径 (yaml)")
	fs.String("recordings-dir", "", "录音保存目录")
	fs.String("quality", "", "录音质量 (high, low)")
	fs.String("microphone", "", "麦克风权限 (prompt, grant, deny)")
	fs.Bool("busy-guard", true, "操作进行中时忽略新的按键")
	fs.String("remote-addr", "", "远程界面监听地址，例如 127.0.0.1:8765，为空时不启用")
	fs.String("log-level", "", "日志级别 (debug, info, warn, error)")
}

var flagKeys = map[string]string{
	"recordings-dir": "recordings_dir",
	"quality":        "quality",
	"microphone":     "microphone",
	"busy-guard":     "busy_guard",
	"remote-addr":    "remote_addr",
	"log-level":      "log_level",
}

// Load 按 参数 > 环境变量 > 配置文件 > 默认值 的顺序读取配置
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("绑定参数 %s 失败: %w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = DefaultRecordingsDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if _, err := device.ParseQuality(c.Quality); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Microphone) {
	case MicrophonePrompt, MicrophoneGrant, MicrophoneDeny:
	default:
		errs = append(errs, fmt.Errorf("未知的麦克风权限模式: %q", c.Microphone))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("未知的日志级别: %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// QualityPreset 解析后的录音质量
func (c *Config) QualityPreset() device.QualityPreset {
	q, err := device.ParseQuality(c.Quality)
	if err != nil {
		return device.QualityHigh
	}
	return q
}
