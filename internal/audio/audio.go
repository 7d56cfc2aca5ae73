// Package audio 基于平台录音器、Oto播放器和Opus编解码实现的音频设备
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justa-cai/parrot-recorder/internal/device"
	"github.com/justa-cai/parrot-recorder/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	ErrRecordingDisabled = errors.New("音频模式不允许录音")
	ErrRecordingActive   = errors.New("音频模式处于录音状态，不能播放")
	ErrSessionActive     = errors.New("已有录音会话在进行")
	ErrSessionNotStarted = errors.New("录音会话尚未开始")
	ErrFormatMismatch    = errors.New("录音格式与播放器不一致")
)

// Permitter 麦克风权限来源
type Permitter interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// DeviceOptions 音频设备选项
type DeviceOptions struct {
	Store       *store.Store
	Permitter   Permitter
	Logger      logrus.FieldLogger
	NewRecorder func() Recorder      // 为空时使用当前平台的录音器
	NewPlayer   func(Format) *Player // 为空时使用 NewPlayer
}

// Device 实现 device.AudioDevice
type Device struct {
	store       *store.Store
	permitter   Permitter
	log         logrus.FieldLogger
	newRecorder func() Recorder
	newPlayer   func(Format) *Player

	mu      sync.Mutex
	mode    device.ModeOptions
	active  *recordingSession
	player  *Player
	current *playback
}

var _ device.AudioDevice = (*Device)(nil)

// NewDevice 创建音频设备
func NewDevice(opts DeviceOptions) (*Device, error) {
	if opts.Store == nil {
		return nil, errors.New("缺少录音存储")
	}
	if opts.Permitter == nil {
		return nil, errors.New("缺少权限来源")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.NewRecorder == nil {
		opts.NewRecorder = NewRecorder
	}
	if opts.NewPlayer == nil {
		opts.NewPlayer = NewPlayer
	}
	return &Device{
		store:       opts.Store,
		permitter:   opts.Permitter,
		log:         opts.Logger,
		newRecorder: opts.NewRecorder,
		newPlayer:   opts.NewPlayer,
	}, nil
}

// RequestPermission 请求麦克风权限
func (d *Device) RequestPermission(ctx context.Context) (bool, error) {
	return d.permitter.RequestPermission(ctx)
}

// Configure 切换音频模式
func (d *Device) Configure(_ context.Context, opts device.ModeOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = opts
	d.log.Debugf("音频模式: 录音=%v, 静音模式播放=%v", opts.RecordingEnabled, opts.PlayInSilentMode)
	return nil
}

// Mode 当前音频模式
func (d *Device) Mode() device.ModeOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// OpenRecordingSession 准备一次录音，Start 之前不占用采集设备
func (d *Device) OpenRecordingSession(_ context.Context, preset device.QualityPreset) (device.Session, error) {
	format, err := FormatFor(preset)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mode.RecordingEnabled {
		return nil, ErrRecordingDisabled
	}
	if d.active != nil {
		return nil, ErrSessionActive
	}

	return &recordingSession{
		dev:     d,
		locator: d.store.NewLocator(),
		format:  format,
	}, nil
}

// CreatePlayback 打开录音文件准备播放，autoPlay 时立即开始
func (d *Device) CreatePlayback(ctx context.Context, loc device.Locator, autoPlay bool) (device.Playback, error) {
	d.mu.Lock()
	if d.mode.RecordingEnabled {
		d.mu.Unlock()
		return nil, ErrRecordingActive
	}
	d.mu.Unlock()

	// 只读取文件头确定格式，Start 时重新打开
	reader, err := d.store.Open(loc)
	if err != nil {
		return nil, err
	}
	h := reader.Header()
	reader.Close()
	format := Format{SampleRate: h.SampleRate, Channels: h.Channels, FrameDuration: h.FrameDuration}

	player, err := d.ensurePlayer(format)
	if err != nil {
		return nil, err
	}

	p := &playback{
		dev:     d,
		locator: loc,
		format:  format,
		player:  player,
		done:    make(chan error, 1),
	}
	if autoPlay {
		if err := p.Start(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ensurePlayer 第一次播放时按录音格式创建播放器
func (d *Device) ensurePlayer(format Format) (*Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		d.player = d.newPlayer(format)
		if d.player.IsDummyMode() {
			d.log.Warn("音频播放器在哑模式下运行，可能无法实际播放音频")
		}
		return d.player, nil
	}
	if d.player.Format() != format {
		return nil, fmt.Errorf("%w: 播放器 %+v, 录音 %+v", ErrFormatMismatch, d.player.Format(), format)
	}
	return d.player, nil
}

// replaceCurrent 新的播放开始时取消上一个
func (d *Device) replaceCurrent(p *playback) {
	d.mu.Lock()
	prev := d.current
	d.current = p
	d.mu.Unlock()

	if prev != nil && prev != p {
		prev.cancel()
	}
}

func (d *Device) clearCurrent(p *playback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == p {
		d.current = nil
	}
}

func (d *Device) claim(s *recordingSession) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return ErrSessionActive
	}
	d.active = s
	return nil
}

func (d *Device) release(s *recordingSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == s {
		d.active = nil
	}
}

// Close 结束进行中的录音和播放
func (d *Device) Close() error {
	d.mu.Lock()
	active, current, player := d.active, d.current, d.player
	d.mu.Unlock()

	var errs []error
	if active != nil {
		if _, err := active.StopAndFinalize(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if current != nil {
		current.cancel()
	}
	if player != nil {
		if err := player.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.log.Debug("音频设备已关闭")
	return errors.Join(errs...)
}
