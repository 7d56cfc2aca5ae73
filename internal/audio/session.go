package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/justa-cai/parrot-recorder/internal/device"
	"github.com/justa-cai/parrot-recorder/internal/store"
)

// recordingSession 采集PCM，逐帧编码为Opus并写入录音文件
type recordingSession struct {
	dev     *Device
	locator device.Locator
	format  Format

	mu        sync.Mutex
	started   bool
	finalized bool
	recorder  Recorder
	codec     *OpusCodec
	writer    *store.FrameWriter
	writeErrs int
}

func (s *recordingSession) ResourceLocator() device.Locator {
	return s.locator
}

func (s *recordingSession) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.dev.claim(s); err != nil {
		return err
	}

	codec, err := NewOpusCodec(s.format.SampleRate, s.format.Channels)
	if err != nil {
		s.dev.release(s)
		return fmt.Errorf("创建Opus编解码器失败: %w", err)
	}

	writer, err := s.dev.store.Create(s.locator, store.Header{
		SampleRate:    s.format.SampleRate,
		Channels:      s.format.Channels,
		FrameDuration: s.format.FrameDuration,
	})
	if err != nil {
		codec.Close()
		s.dev.release(s)
		return err
	}

	rec := s.dev.newRecorder()
	rec.SetPCMDataCallback(s.onPCM)
	s.codec, s.writer, s.recorder = codec, writer, rec

	if err := rec.StartRecording(s.format); err != nil {
		writer.Close()
		os.Remove(string(s.locator))
		codec.Close()
		s.dev.release(s)
		return fmt.Errorf("开始录音失败: %w", err)
	}

	s.started = true
	s.dev.log.Debugf("录音会话已开始: %s, 格式 %+v", s.locator, s.format)
	return nil
}

// onPCM 在录音器的goroutine中调用
func (s *recordingSession) onPCM(pcm []int16, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.writer == nil {
		return
	}
	if len(pcm) != s.format.FrameSamples()*s.format.Channels {
		s.dev.log.Debugf("丢弃不完整的音频帧: %d个采样", len(pcm))
		return
	}

	packet, err := s.codec.Encode(pcm)
	if err == nil {
		err = s.writer.WriteFrame(packet)
	}
	if err != nil {
		s.writeErrs++
		if s.writeErrs == 1 {
			s.dev.log.Errorf("写入音频帧失败: %v", err)
		}
	}
}

func (s *recordingSession) StopAndFinalize(context.Context) (device.FinalizeStatus, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return device.FinalizeStatus{}, ErrSessionNotStarted
	}
	if s.finalized {
		s.mu.Unlock()
		return device.FinalizeStatus{}, nil
	}
	rec := s.recorder
	s.mu.Unlock()

	// 停止时录音器会等待采集goroutine退出，它会回调 onPCM，所以不能持锁
	stopErr := rec.StopRecording()
	if rec.IsRecording() {
		return device.FinalizeStatus{StillActive: true}, stopErr
	}

	s.mu.Lock()
	s.finalized = true
	frames := s.writer.Frames()
	writeErr := s.writer.Close()
	s.codec.Close()
	s.mu.Unlock()

	rec.Close()
	s.dev.release(s)
	s.dev.log.Debugf("录音会话已结束: %s, 共%d帧", s.locator, frames)

	if err := errors.Join(stopErr, writeErr); err != nil {
		return device.FinalizeStatus{}, fmt.Errorf("结束录音失败: %w", err)
	}
	return device.FinalizeStatus{}, nil
}

// playback 解码录音文件并送入播放器队列。录音文件在 Start 时才打开。
type playback struct {
	dev     *Device
	locator device.Locator
	format  Format
	player  *Player
	done    chan error

	mu       sync.Mutex
	started  bool
	startErr error
	cancelFn context.CancelFunc
	doneOnce sync.Once
}

func (p *playback) Done() <-chan error {
	return p.done
}

func (p *playback) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return p.startErr
	}
	p.started = true
	if err := p.start(ctx); err != nil {
		p.startErr = err
		p.finish(err)
		return err
	}
	return nil
}

// start 在持有 p.mu 时调用
func (p *playback) start(ctx context.Context) error {
	reader, err := p.dev.store.Open(p.locator)
	if err != nil {
		return err
	}

	codec, err := NewOpusCodec(p.format.SampleRate, p.format.Channels)
	if err != nil {
		reader.Close()
		return fmt.Errorf("创建Opus编解码器失败: %w", err)
	}

	p.dev.replaceCurrent(p)
	p.player.ClearQueue()
	if err := p.player.Start(); err != nil {
		codec.Close()
		reader.Close()
		p.dev.clearCurrent(p)
		return fmt.Errorf("启动音频播放器失败: %w", err)
	}

	// 播放不跟随调用方的取消，只能被新的播放或设备关闭打断
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancelFn = cancel
	go p.run(runCtx, reader, codec)
	return nil
}

// finish 发送播放结果并关闭 done，只生效一次
func (p *playback) finish(err error) {
	p.doneOnce.Do(func() {
		p.done <- err
		close(p.done)
	})
}

func (p *playback) cancel() {
	p.mu.Lock()
	cancel := p.cancelFn
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *playback) run(ctx context.Context, reader *store.FrameReader, codec *OpusCodec) {
	err := p.queueAll(ctx, reader, codec)
	codec.Close()
	reader.Close()
	if err == nil {
		err = p.drain(ctx)
	}
	p.dev.clearCurrent(p)

	if err != nil && !errors.Is(err, context.Canceled) {
		p.dev.log.Errorf("播放录音失败: %s: %v", p.locator, err)
	} else {
		p.dev.log.Debugf("播放结束: %s", p.locator)
	}
	p.finish(err)
}

func (p *playback) queueAll(ctx context.Context, reader *store.FrameReader, codec *OpusCodec) error {
	pcm := make([]int16, maxOpusFrameSize*p.format.Channels)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		packet, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		n, err := codec.Decode(packet, pcm)
		if err != nil {
			return fmt.Errorf("解码音频数据失败: %w", err)
		}
		p.player.QueuePCMAudio(pcm[:n])
	}
}

// drain 等待播放器队列清空
func (p *playback) drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for p.player.QueueLength() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
