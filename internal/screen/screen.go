// Package screen 录音界面的状态机：开始录音、停止录音、播放最近一次录音
package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justa-cai/parrot-recorder/internal/device"
	"github.com/sirupsen/logrus"
)

var (
	ErrPermissionDenied    = errors.New("录音权限被拒绝")
	ErrAlreadyRecording    = errors.New("已经在录音中")
	ErrNoSession           = errors.New("没有找到录音对象")
	ErrStillActive         = errors.New("录音没有正确停止")
	ErrNothingToPlay       = errors.New("没有可播放的录音文件")
	ErrBusy                = errors.New("上一个操作尚未完成")
	ErrDeviceConfiguration = errors.New("设置音频模式失败")
	ErrSessionLifecycle    = errors.New("录音会话操作失败")
	ErrPlaybackDevice      = errors.New("播放录音失败")
)

var (
	recordingMode = device.ModeOptions{RecordingEnabled: true, PlayInSilentMode: true}
	idleMode      = device.ModeOptions{RecordingEnabled: false, PlayInSilentMode: true}
)

// State 提供给界面层的状态快照
type State struct {
	IsRecording   bool
	LastRecording device.Locator
	Busy          bool
}

// HasRecording 是否有可播放的录音
func (s State) HasRecording() bool {
	return s.LastRecording != ""
}

// Options 界面选项
type Options struct {
	Quality   device.QualityPreset
	BusyGuard bool               // 操作进行中时拒绝新的按键
	Reporter  logrus.FieldLogger // 为空时使用logrus标准日志
}

// Screen 录音界面控制器
type Screen struct {
	device    device.AudioDevice
	quality   device.QualityPreset
	busyGuard bool
	log       logrus.FieldLogger

	mu             sync.Mutex
	session        device.Session
	lastRecording  device.Locator
	inFlight       int
	onStateChanged func(State)
	seq            uint64

	// notifyMu 保证回调依次执行，delivered 是最后送出的快照序号
	notifyMu  sync.Mutex
	delivered uint64
}

// New 创建录音界面控制器
func New(dev device.AudioDevice, opts Options) *Screen {
	if opts.Quality == "" {
		opts.Quality = device.QualityHigh
	}
	if opts.Reporter == nil {
		opts.Reporter = logrus.StandardLogger()
	}
	return &Screen{
		device:    dev,
		quality:   opts.Quality,
		busyGuard: opts.BusyGuard,
		log:       opts.Reporter,
	}
}

// SetOnStateChanged 设置状态变更回调，用于重新渲染界面。
// 回调依次执行，不会收到比已送出的快照更旧的状态；回调中不能同步调用录音或播放操作。
func (s *Screen) SetOnStateChanged(callback func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChanged = callback
}

// State 返回当前状态
func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// IsRecording 当且仅当持有录音会话时为true
func (s *Screen) IsRecording() bool {
	return s.State().IsRecording
}

// LastRecording 最近一次录音的位置，没有时为空
func (s *Screen) LastRecording() device.Locator {
	return s.State().LastRecording
}

func (s *Screen) stateLocked() State {
	return State{
		IsRecording:   s.session != nil,
		LastRecording: s.lastRecording,
		Busy:          s.inFlight > 0,
	}
}

// update 在锁内修改状态，然后在锁外通知界面
func (s *Screen) update(fn func()) {
	s.mu.Lock()
	fn()
	seq, st, cb := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(seq, st, cb)
}

func (s *Screen) snapshotLocked() (uint64, State, func(State)) {
	s.seq++
	return s.seq, s.stateLocked(), s.onStateChanged
}

// notify 丢弃过时的快照。多个goroutine的更新可能乱序到达这里。
func (s *Screen) notify(seq uint64, st State, cb func(State)) {
	if cb == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.delivered {
		return
	}
	s.delivered = seq
	cb(st)
}

// begin 被忙碌保护拒绝时状态不变，不通知界面
func (s *Screen) begin() error {
	s.mu.Lock()
	if s.busyGuard && s.inFlight > 0 {
		s.mu.Unlock()
		return ErrBusy
	}
	s.inFlight++
	seq, st, cb := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(seq, st, cb)
	return nil
}

func (s *Screen) end() {
	s.update(func() { s.inFlight-- })
}

func (s *Screen) currentSession() device.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// OnPrimaryButtonPress 录音/停止按钮：有录音会话时停止，否则开始录音
func (s *Screen) OnPrimaryButtonPress(ctx context.Context) {
	if s.currentSession() != nil {
		s.report("停止录音失败", s.StopRecording(ctx))
		return
	}
	s.report("开始录音失败", s.StartRecording(ctx))
}

// OnPlayButtonPress 播放按钮
func (s *Screen) OnPlayButtonPress(ctx context.Context) {
	s.report("播放录音失败", s.PlayRecordedFile(ctx))
}

// report 按键入口处记录并吞掉错误，界面保持操作前的状态
func (s *Screen) report(op string, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrNoSession),
		errors.Is(err, ErrNothingToPlay),
		errors.Is(err, ErrBusy),
		errors.Is(err, ErrAlreadyRecording):
		s.log.Warnf("%s: %v", op, err)
	default:
		s.log.Errorf("%s: %v", op, err)
	}
}

// StartRecording 请求权限、切换到录音模式并开始录音
func (s *Screen) StartRecording(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	if s.currentSession() != nil {
		return ErrAlreadyRecording
	}

	s.log.Info("正在请求录音权限...")
	granted, err := s.device.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	if err := s.device.Configure(ctx, recordingMode); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceConfiguration, err)
	}

	s.log.Info("开始录音...")
	session, err := s.device.OpenRecordingSession(ctx, s.quality)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionLifecycle, err)
	}
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionLifecycle, err)
	}

	// 会话创建成功后才进入录音状态
	var raced bool
	s.update(func() {
		if s.session != nil {
			raced = true
			return
		}
		s.session = session
	})
	if raced {
		// 未开启忙碌保护时两次开始可能交错，多出来的会话直接结束
		if _, err := session.StopAndFinalize(ctx); err != nil {
			s.log.Warnf("结束多余的录音会话失败: %v", err)
		}
		return ErrAlreadyRecording
	}

	s.log.Info("录音已开始")
	return nil
}

// StopRecording 停止并保存录音，记录其位置作为最近一次录音
func (s *Screen) StopRecording(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	s.log.Info("正在停止录音...")
	session := s.currentSession()
	if session == nil {
		return ErrNoSession
	}

	status, err := session.StopAndFinalize(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionLifecycle, err)
	}
	if status.StillActive {
		return ErrStillActive
	}

	s.update(func() {
		if s.session == session {
			s.session = nil
		}
	})

	if err := s.device.Configure(ctx, idleMode); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceConfiguration, err)
	}

	loc := session.ResourceLocator()
	s.update(func() { s.lastRecording = loc })
	s.log.Infof("录音已停止，保存在 %s", loc)
	return nil
}

// PlayRecordedFile 播放最近一次录音，不等待播放结束
func (s *Screen) PlayRecordedFile(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	loc := s.LastRecording()
	if loc == "" {
		return ErrNothingToPlay
	}

	if err := s.device.Configure(ctx, idleMode); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceConfiguration, err)
	}

	playback, err := s.device.CreatePlayback(ctx, loc, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackDevice, err)
	}
	if err := playback.Start(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackDevice, err)
	}

	s.log.Debugf("开始播放 %s", loc)
	return nil
}
