// Package device 定义录音界面依赖的宿主音频能力
package device

import (
	"context"
	"fmt"
	"strings"
)

// Locator 已保存录音的位置（文件路径）
type Locator string

// ModeOptions 音频能力模式
type ModeOptions struct {
	RecordingEnabled bool // 是否允许录音
	PlayInSilentMode bool // 静音模式下是否仍然播放
}

// QualityPreset 录音质量预设
type QualityPreset string

const (
	QualityHigh QualityPreset = "high"
	QualityLow  QualityPreset = "low"
)

// ParseQuality 解析质量预设，空字符串返回高质量
func ParseQuality(s string) (QualityPreset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(QualityHigh):
		return QualityHigh, nil
	case string(QualityLow):
		return QualityLow, nil
	default:
		return "", fmt.Errorf("未知的录音质量: %q", s)
	}
}

// FinalizeStatus 停止录音后的设备状态
type FinalizeStatus struct {
	StillActive bool // 设备仍在录音，说明没有正确停止
}

// AudioDevice 宿主平台提供的音频能力
type AudioDevice interface {
	RequestPermission(ctx context.Context) (bool, error)
	Configure(ctx context.Context, opts ModeOptions) error
	OpenRecordingSession(ctx context.Context, preset QualityPreset) (Session, error)
	CreatePlayback(ctx context.Context, loc Locator, autoPlay bool) (Playback, error)
}

// Session 一次录音
type Session interface {
	Start(ctx context.Context) error
	StopAndFinalize(ctx context.Context) (FinalizeStatus, error)
	ResourceLocator() Locator
}

// Playback 一次播放。Start 不阻塞，Done 在播放结束后关闭。
type Playback interface {
	Start(ctx context.Context) error
	Done() <-chan error
}
