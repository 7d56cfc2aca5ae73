package audio

import (
	"fmt"

	"github.com/justa-cai/parrot-recorder/internal/device"
)

const (
	DefaultSampleRate    = 48000
	DefaultChannelCount  = 1
	DefaultFrameDuration = 60 // 毫秒
	LowSampleRate        = 16000
)

// Format 采集和播放使用的PCM格式
type Format struct {
	SampleRate    int // 采样率
	Channels      int // 通道数
	FrameDuration int // 帧持续时间（毫秒）
}

// FrameSamples 每帧每通道的采样数
func (f Format) FrameSamples() int {
	return f.SampleRate * f.FrameDuration / 1000
}

// FormatFor 质量预设对应的格式
func FormatFor(preset device.QualityPreset) (Format, error) {
	switch preset {
	case device.QualityHigh, "":
		return Format{SampleRate: DefaultSampleRate, Channels: DefaultChannelCount, FrameDuration: DefaultFrameDuration}, nil
	case device.QualityLow:
		return Format{SampleRate: LowSampleRate, Channels: DefaultChannelCount, FrameDuration: DefaultFrameDuration}, nil
	default:
		return Format{}, fmt.Errorf("未知的录音质量: %q", preset)
	}
}

// Recorder 平台录音器
type Recorder interface {
	StartRecording(format Format) error
	StopRecording() error
	Close() error
	SetPCMDataCallback(cb func([]int16, int))
	IsRecording() bool
}

// NewRecorder 返回当前平台的录音器实例
func NewRecorder() Recorder {
	return newRecorder()
}
