package screen

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/justa-cai/parrot-recorder/internal/device"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScreen(t *testing.T, dev *fakeDevice, busyGuard bool) (*Screen, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(dev, Options{BusyGuard: busyGuard, Reporter: logger}), hook
}

func hasEntry(hook *test.Hook, level logrus.Level) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level {
			return true
		}
	}
	return false
}

func TestRecordStopPlayScenario(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)

	require.NoError(t, s.StartRecording(ctx))
	assert.True(t, s.IsRecording())
	require.Len(t, dev.sessions, 1)
	assert.Equal(t, []device.QualityPreset{device.QualityHigh}, dev.presets)
	assert.Equal(t, []device.ModeOptions{recordingMode}, dev.configureCalls)

	require.NoError(t, s.StopRecording(ctx))
	assert.False(t, s.IsRecording())
	assert.Equal(t, device.Locator("rec1.m4a"), s.LastRecording())
	assert.Equal(t, idleMode, dev.configureCalls[len(dev.configureCalls)-1])

	require.NoError(t, s.PlayRecordedFile(ctx))
	require.Len(t, dev.playbacks, 1)
	assert.Equal(t, device.Locator("rec1.m4a"), dev.playbacks[0].locator)
	assert.True(t, dev.playbacks[0].autoPlay)
	assert.Equal(t, 1, dev.playbacks[0].startCalls)
}

func TestStartWithoutPermission(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	dev.granted = false
	s, hook := newTestScreen(t, dev, true)

	err := s.StartRecording(ctx)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, s.IsRecording())
	assert.Empty(t, s.LastRecording())
	assert.Empty(t, dev.sessions)
	assert.Empty(t, dev.configureCalls)

	s.OnPrimaryButtonPress(ctx)
	assert.True(t, hasEntry(hook, logrus.WarnLevel))
	assert.Empty(t, dev.sessions)
}

func TestPermissionRequestError(t *testing.T) {
	dev := newFakeDevice()
	dev.permErr = errors.New("prompt closed")
	s, _ := newTestScreen(t, dev, true)

	err := s.StartRecording(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, s.IsRecording())
}

func TestStopWithoutSessionIsNoop(t *testing.T) {
	dev := newFakeDevice()
	s, hook := newTestScreen(t, dev, true)
	before := s.State()

	err := s.StopRecording(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, before, s.State())
	assert.Empty(t, dev.configureCalls)
	assert.Zero(t, dev.finalizeCalls())

	s.OnPlayButtonPress(context.Background())
	assert.True(t, hasEntry(hook, logrus.WarnLevel))
}

func TestSecondRecordingOverwritesLast(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)

	require.NoError(t, s.StartRecording(ctx))
	require.NoError(t, s.StopRecording(ctx))
	assert.Equal(t, device.Locator("rec1.m4a"), s.LastRecording())

	require.NoError(t, s.StartRecording(ctx))
	// 新录音进行中时上一次录音仍然可以播放
	assert.Equal(t, device.Locator("rec1.m4a"), s.LastRecording())
	require.NoError(t, s.StopRecording(ctx))
	assert.Equal(t, device.Locator("rec2.m4a"), s.LastRecording())
}

func TestPlayWithoutRecording(t *testing.T) {
	dev := newFakeDevice()
	s, hook := newTestScreen(t, dev, true)

	err := s.PlayRecordedFile(context.Background())
	assert.ErrorIs(t, err, ErrNothingToPlay)
	assert.Empty(t, dev.playbacks)
	assert.Empty(t, dev.configureCalls)

	s.OnPlayButtonPress(context.Background())
	assert.True(t, hasEntry(hook, logrus.WarnLevel))
}

func TestPlayWhileRecording(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)

	require.NoError(t, s.StartRecording(ctx))
	require.NoError(t, s.StopRecording(ctx))
	require.NoError(t, s.StartRecording(ctx))

	configured := len(dev.configureCalls)
	require.NoError(t, s.PlayRecordedFile(ctx))
	assert.Len(t, dev.configureCalls, configured+1)
	assert.Equal(t, idleMode, dev.configureCalls[configured])
	require.Len(t, dev.playbacks, 1)
	assert.Equal(t, 1, dev.playbacks[0].startCalls)
	assert.True(t, s.IsRecording())
}

func TestStartFailuresLeaveIdle(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(d *fakeDevice)
		wantErr error
	}{
		{
			name:    "configure",
			setup:   func(d *fakeDevice) { d.configureErr = errors.New("mode rejected") },
			wantErr: ErrDeviceConfiguration,
		},
		{
			name:    "open",
			setup:   func(d *fakeDevice) { d.openErr = errors.New("no input device") },
			wantErr: ErrSessionLifecycle,
		},
		{
			name:    "start",
			setup:   func(d *fakeDevice) { d.startErr = errors.New("capture failed") },
			wantErr: ErrSessionLifecycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			tt.setup(dev)
			s, hook := newTestScreen(t, dev, true)

			err := s.StartRecording(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, s.IsRecording())

			s.OnPrimaryButtonPress(context.Background())
			assert.False(t, s.IsRecording())
			assert.True(t, hasEntry(hook, logrus.ErrorLevel))
		})
	}
}

func TestStopStillActiveKeepsSession(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)
	require.NoError(t, s.StartRecording(ctx))

	dev.stillActive = true
	configured := len(dev.configureCalls)
	err := s.StopRecording(ctx)
	assert.ErrorIs(t, err, ErrStillActive)
	assert.True(t, s.IsRecording())
	assert.Empty(t, s.LastRecording())
	assert.Len(t, dev.configureCalls, configured)

	dev.stillActive = false
	require.NoError(t, s.StopRecording(ctx))
	assert.False(t, s.IsRecording())
	assert.Equal(t, device.Locator("rec1.m4a"), s.LastRecording())
}

func TestStopFinalizeError(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)
	require.NoError(t, s.StartRecording(ctx))

	dev.finalizeErr = errors.New("device gone")
	assert.ErrorIs(t, s.StopRecording(ctx), ErrSessionLifecycle)
	assert.True(t, s.IsRecording())
}

func TestStopReconfigureErrorClearsSession(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)
	require.NoError(t, s.StartRecording(ctx))

	dev.configureErr = errors.New("mode rejected")
	assert.ErrorIs(t, s.StopRecording(ctx), ErrDeviceConfiguration)
	assert.False(t, s.IsRecording())
	assert.Empty(t, s.LastRecording())
}

func TestPlaybackFailures(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)
	require.NoError(t, s.StartRecording(ctx))
	require.NoError(t, s.StopRecording(ctx))

	dev.createErr = errors.New("unreadable")
	assert.ErrorIs(t, s.PlayRecordedFile(ctx), ErrPlaybackDevice)

	dev.createErr = nil
	dev.playStartErr = errors.New("no output")
	assert.ErrorIs(t, s.PlayRecordedFile(ctx), ErrPlaybackDevice)
	assert.Equal(t, device.Locator("rec1.m4a"), s.LastRecording())
}

func TestPrimaryButtonToggles(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)

	var states []State
	s.SetOnStateChanged(func(st State) { states = append(states, st) })

	s.OnPrimaryButtonPress(ctx)
	assert.True(t, s.IsRecording())
	s.OnPrimaryButtonPress(ctx)
	assert.False(t, s.IsRecording())
	assert.True(t, s.State().HasRecording())

	var sawRecording bool
	for _, st := range states {
		if st.IsRecording {
			sawRecording = true
		}
	}
	assert.True(t, sawRecording)
	assert.False(t, states[len(states)-1].Busy)
}

func TestBusyGuardRejectsOverlappingPress(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	dev.permGate = make(chan struct{})
	dev.permSeen = make(chan struct{}, 1)
	s, _ := newTestScreen(t, dev, true)

	errCh := make(chan error, 1)
	go func() { errCh <- s.StartRecording(ctx) }()
	<-dev.permSeen

	assert.True(t, s.State().Busy)
	assert.ErrorIs(t, s.StartRecording(ctx), ErrBusy)
	assert.ErrorIs(t, s.PlayRecordedFile(ctx), ErrBusy)

	close(dev.permGate)
	require.NoError(t, <-errCh)
	assert.True(t, s.IsRecording())
	assert.Len(t, dev.sessions, 1)
	assert.False(t, s.State().Busy)
}

func TestWithoutBusyGuardOverlappingStartsKeepOneSession(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	dev.permGate = make(chan struct{})
	dev.permSeen = make(chan struct{}, 2)
	s, _ := newTestScreen(t, dev, false)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.StartRecording(ctx)
		}(i)
	}
	<-dev.permSeen
	<-dev.permSeen
	close(dev.permGate)
	wg.Wait()

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyRecording):
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, already)
	assert.True(t, s.IsRecording())
	assert.Equal(t, 1, dev.liveSessions())
}

func TestIsRecordingTracksHeldSession(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	dev := newFakeDevice()
	s, _ := newTestScreen(t, dev, true)
	failure := errors.New("injected")

	for i := 0; i < 500; i++ {
		dev.mu.Lock()
		dev.granted = rng.Intn(5) != 0
		dev.configureErr = pick(rng, failure)
		dev.openErr = pick(rng, failure)
		dev.startErr = pick(rng, failure)
		dev.finalizeErr = pick(rng, failure)
		dev.stillActive = rng.Intn(8) == 0
		dev.mu.Unlock()

		if rng.Intn(3) == 0 {
			s.OnPlayButtonPress(ctx)
		} else {
			s.OnPrimaryButtonPress(ctx)
		}

		assert.Equal(t, s.IsRecording(), dev.liveSessions() == 1, "step %d", i)
		assert.LessOrEqual(t, dev.liveSessions(), 1, "step %d", i)
	}
}

func pick(rng *rand.Rand, err error) error {
	if rng.Intn(6) == 0 {
		return err
	}
	return nil
}

// recordedStates 并发安全地收集回调收到的状态
type recordedStates struct {
	mu     sync.Mutex
	states []State
}

func (r *recordedStates) add(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recordedStates) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recordedStates) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func TestRejectedPressDoesNotRenderStaleState(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	dev.permGate = make(chan struct{})
	dev.permSeen = make(chan struct{}, 1)
	s, hook := newTestScreen(t, dev, true)

	var rendered recordedStates
	s.SetOnStateChanged(rendered.add)

	errCh := make(chan error, 1)
	go func() { errCh <- s.StartRecording(ctx) }()
	<-dev.permSeen

	before := rendered.len()
	s.OnPrimaryButtonPress(ctx)
	assert.Equal(t, before, rendered.len(), "rejected press must not notify")
	assert.True(t, hasEntry(hook, logrus.WarnLevel))

	close(dev.permGate)
	require.NoError(t, <-errCh)

	assert.Equal(t, s.State(), rendered.last())
	assert.True(t, rendered.last().IsRecording)
	assert.False(t, rendered.last().Busy)
}

func TestOlderSnapshotIsDropped(t *testing.T) {
	s, _ := newTestScreen(t, newFakeDevice(), true)

	var rendered recordedStates
	newer := State{IsRecording: true}
	older := State{Busy: true}
	s.notify(2, newer, rendered.add)
	s.notify(1, older, rendered.add)
	s.notify(2, older, rendered.add)

	require.Equal(t, 1, rendered.len())
	assert.Equal(t, newer, rendered.last())
}

func TestConcurrentPressesEndOnCurrentState(t *testing.T) {
	ctx := context.Background()
	for _, guard := range []bool{true, false} {
		dev := newFakeDevice()
		s, _ := newTestScreen(t, dev, guard)

		var rendered recordedStates
		s.SetOnStateChanged(rendered.add)

		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%3 == 0 {
					s.OnPlayButtonPress(ctx)
					return
				}
				s.OnPrimaryButtonPress(ctx)
			}(i)
		}
		wg.Wait()

		require.NotZero(t, rendered.len())
		assert.Equal(t, s.State(), rendered.last(), "busy guard=%v", guard)
		assert.False(t, rendered.last().Busy)
	}
}
