//go:build darwin

package audio

import (
	"errors"
	"sync"
)

// TODO: 用CoreAudio AudioQueue实现macOS采集
type darwinRecorder struct {
	onPCMData func([]int16, int)
	mu        sync.Mutex
}

func newRecorder() Recorder {
	return &darwinRecorder{}
}

func (r *darwinRecorder) StartRecording(Format) error {
	return errors.New("macOS录音功能未实现")
}

func (r *darwinRecorder) StopRecording() error {
	return nil
}

func (r *darwinRecorder) Close() error {
	return nil
}

func (r *darwinRecorder) SetPCMDataCallback(cb func([]int16, int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPCMData = cb
}

func (r *darwinRecorder) IsRecording() bool {
	return false
}
