//go:build linux

package audio

/*
#cgo pkg-config: libpulse-simple
#include <pulse/simple.h>
#include <pulse/error.h>
#include <stdlib.h>

typedef struct pa_simple pa_simple;

static pa_simple* open_pulse_capture(unsigned int sampleRate, int channels, int* error) {
    pa_sample_spec ss;
    ss.format = PA_SAMPLE_S16LE;
    ss.rate = sampleRate;
    ss.channels = channels;
    return pa_simple_new(NULL, "parrot-recorder", PA_STREAM_RECORD, NULL, "record", &ss, NULL, NULL, error);
}
static int read_pulse(pa_simple* s, void* buf, int bytes, int* error) {
    return pa_simple_read(s, buf, bytes, error);
}
static void close_pulse(pa_simple* s) {
    if (s) pa_simple_free(s);
}
*/
import "C"
import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// 连续读取失败超过该次数后结束采集
const maxReadFailures = 50

type linuxRecorder struct {
	isRecording bool
	onPCMData   func([]int16, int)
	stopCh      chan struct{}
	mu          sync.Mutex
	handle      *C.pa_simple
	wg          sync.WaitGroup
}

func newRecorder() Recorder {
	return &linuxRecorder{}
}

func (r *linuxRecorder) StartRecording(format Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRecording {
		return errors.New("录音已在进行中")
	}

	var errorCode C.int
	samples := format.FrameSamples() * format.Channels
	bufSize := samples * 2

	h := C.open_pulse_capture(C.uint(format.SampleRate), C.int(format.Channels), &errorCode)
	if h == nil {
		return fmt.Errorf("打开PulseAudio录音设备失败: %s", C.GoString(C.pa_strerror(errorCode)))
	}
	r.handle = h
	r.isRecording = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	onPCM := r.onPCMData
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		var readErr C.int
		failures := 0
		buf := make([]int16, samples)
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			if C.read_pulse(h, unsafe.Pointer(&buf[0]), C.int(bufSize), &readErr) != 0 {
				failures++
				if failures >= maxReadFailures {
					logrus.Errorf("PulseAudio读取失败次数过多: %s", C.GoString(C.pa_strerror(readErr)))
					return
				}
				continue
			}
			failures = 0
			if onPCM != nil {
				pcmCopy := make([]int16, samples)
				copy(pcmCopy, buf)
				onPCM(pcmCopy, samples)
			}
		}
	}()
	return nil
}

func (r *linuxRecorder) StopRecording() error {
	r.mu.Lock()
	if !r.isRecording {
		r.mu.Unlock()
		return nil
	}
	close(r.stopCh)
	r.isRecording = false
	handle := r.handle
	r.handle = nil
	r.mu.Unlock()

	// 等待采集goroutine退出后再释放handle
	r.wg.Wait()
	if handle != nil {
		C.close_pulse(handle)
	}
	return nil
}

func (r *linuxRecorder) Close() error {
	return r.StopRecording()
}

func (r *linuxRecorder) SetPCMDataCallback(cb func([]int16, int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPCMData = cb
}

func (r *linuxRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRecording
}
