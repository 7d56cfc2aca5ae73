package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/oto"
	"github.com/sirupsen/logrus"
)

// oto 每个进程只能创建一个 Context
var (
	otoMu     sync.Mutex
	otoInited bool
)

// Player 使用Oto播放PCM队列，打不开输出设备时以哑模式运行
type Player struct {
	context *oto.Context
	format  Format

	mu        sync.Mutex
	isPlaying bool
	stopCh    chan struct{}
	loopDone  chan struct{}
	dummyMode bool

	queueMu sync.Mutex
	queue   [][]int16
}

// NewPlayer 创建播放器
func NewPlayer(format Format) *Player {
	ctx, err := newOtoContext(format)
	if err != nil {
		logrus.Errorf("创建音频播放器失败: %v, 将以哑模式运行", err)
		return NewDummyPlayer(format)
	}
	p := NewDummyPlayer(format)
	p.context = ctx
	p.dummyMode = false
	return p
}

// NewDummyPlayer 不输出声音的播放器，按帧时长消耗队列
func NewDummyPlayer(format Format) *Player {
	return &Player{
		format:    format,
		queue:     make([][]int16, 0, 100),
		dummyMode: true,
	}
}

func newOtoContext(format Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoInited {
		return nil, errors.New("Oto Context 已初始化，不能重复创建")
	}
	bufferSize := format.FrameSamples() * format.Channels * 2
	ctx, err := oto.NewContext(format.SampleRate, format.Channels, 2, bufferSize)
	if err != nil {
		return nil, fmt.Errorf("初始化Oto失败: %v", err)
	}
	otoInited = true
	return ctx, nil
}

// Format 播放器格式
func (p *Player) Format() Format {
	return p.format
}

// IsDummyMode 是否在哑模式下运行
func (p *Player) IsDummyMode() bool {
	return p.dummyMode
}

// Start 启动播放循环
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isPlaying {
		return nil
	}
	p.isPlaying = true
	p.stopCh = make(chan struct{})
	p.loopDone = make(chan struct{})

	if p.dummyMode {
		go p.dummyLoop(p.stopCh, p.loopDone)
	} else {
		go p.otoPlayLoop(p.stopCh, p.loopDone)
	}
	return nil
}

// otoPlayLoop 持续播放队列中的PCM数据
func (p *Player) otoPlayLoop(stopCh, done chan struct{}) {
	defer close(done)
	player := p.context.NewPlayer()
	defer player.Close()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		pcm, ok := p.dequeue()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		buf := make([]byte, len(pcm)*2)
		for i, v := range pcm {
			buf[2*i] = byte(v)
			buf[2*i+1] = byte(v >> 8)
		}
		if _, err := player.Write(buf); err != nil {
			logrus.Warnf("写入音频数据失败: %v", err)
		}
	}
}

// dummyLoop 哑模式下按帧时长丢弃数据，模拟播放
func (p *Player) dummyLoop(stopCh, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Duration(p.format.FrameDuration) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.dequeue()
		}
	}
}

func (p *Player) dequeue() ([]int16, bool) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	pcm := p.queue[0]
	p.queue = p.queue[1:]
	return pcm, true
}

// QueuePCMAudio 把PCM数据加入播放队列
func (p *Player) QueuePCMAudio(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	dataCopy := make([]int16, len(pcm))
	copy(dataCopy, pcm)

	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	p.queue = append(p.queue, dataCopy)
}

// ClearQueue 清空播放队列
func (p *Player) ClearQueue() {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	p.queue = p.queue[:0]
}

// QueueLength 当前队列长度
func (p *Player) QueueLength() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// IsPlaying 播放循环是否在运行
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlaying
}

// Stop 停止播放循环并清空队列
func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.isPlaying {
		p.mu.Unlock()
		return nil
	}
	p.isPlaying = false
	close(p.stopCh)
	done := p.loopDone
	p.mu.Unlock()

	p.ClearQueue()

	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		logrus.Warn("停止音频播放超时")
		return errors.New("停止音频播放超时")
	}
}

// Close 停止播放并释放资源
func (p *Player) Close() error {
	err := p.Stop()
	if p.context != nil {
		if cerr := p.context.Close(); cerr != nil && err == nil {
			err = cerr
		}
		p.context = nil
	}
	return err
}
