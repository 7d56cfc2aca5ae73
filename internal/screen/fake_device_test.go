package screen

import (
	"context"
	"fmt"
	"sync"

	"github.com/justa-cai/parrot-recorder/internal/device"
)

// fakeDevice 记录所有调用的假音频设备
type fakeDevice struct {
	mu sync.Mutex

	granted      bool
	permErr      error
	configureErr error
	openErr      error
	startErr     error
	finalizeErr  error
	stillActive  bool
	createErr    error
	playStartErr error

	// permGate 不为空时 RequestPermission 会阻塞直到收到值
	permGate chan struct{}
	permSeen chan struct{}

	configureCalls []device.ModeOptions
	presets        []device.QualityPreset
	sessions       []*fakeSession
	playbacks      []*fakePlayback
	permCalls      int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{granted: true}
}

func (d *fakeDevice) RequestPermission(ctx context.Context) (bool, error) {
	d.mu.Lock()
	d.permCalls++
	gate, seen := d.permGate, d.permSeen
	granted, err := d.granted, d.permErr
	d.mu.Unlock()

	if gate != nil {
		if seen != nil {
			seen <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return granted, err
}

func (d *fakeDevice) Configure(_ context.Context, opts device.ModeOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configureCalls = append(d.configureCalls, opts)
	return d.configureErr
}

func (d *fakeDevice) OpenRecordingSession(_ context.Context, preset device.QualityPreset) (device.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presets = append(d.presets, preset)
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeSession{dev: d, locator: device.Locator(fmt.Sprintf("rec%d.m4a", len(d.sessions)+1))}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDevice) CreatePlayback(_ context.Context, loc device.Locator, autoPlay bool) (device.Playback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return nil, d.createErr
	}
	p := &fakePlayback{dev: d, locator: loc, autoPlay: autoPlay, done: make(chan error)}
	d.playbacks = append(d.playbacks, p)
	return p, nil
}

// liveSessions 已开始且未成功停止的会话数
func (d *fakeDevice) liveSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sessions {
		if s.live {
			n++
		}
	}
	return n
}

func (d *fakeDevice) finalizeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sessions {
		n += s.finalizeCalls
	}
	return n
}

type fakeSession struct {
	dev           *fakeDevice
	locator       device.Locator
	live          bool
	finalizeCalls int
}

func (s *fakeSession) Start(context.Context) error {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.startErr != nil {
		return s.dev.startErr
	}
	s.live = true
	return nil
}

func (s *fakeSession) StopAndFinalize(context.Context) (device.FinalizeStatus, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.finalizeCalls++
	if s.dev.finalizeErr != nil {
		return device.FinalizeStatus{}, s.dev.finalizeErr
	}
	s.live = s.dev.stillActive
	return device.FinalizeStatus{StillActive: s.dev.stillActive}, nil
}

func (s *fakeSession) ResourceLocator() device.Locator {
	return s.locator
}

type fakePlayback struct {
	dev        *fakeDevice
	locator    device.Locator
	autoPlay   bool
	startCalls int
	done       chan error
}

func (p *fakePlayback) Start(context.Context) error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.startCalls++
	return p.dev.playStartErr
}

func (p *fakePlayback) Done() <-chan error {
	return p.done
}
