//go:build windows

package audio

/*
#cgo LDFLAGS: -lwinmm
#include <windows.h>
#include <mmsystem.h>
#include <stdlib.h>

HWAVEIN hWaveIn;
WAVEHDR waveHdr;
short *buffer;

int start_recording(int sampleRate, int channels, int bufsize) {
    WAVEFORMATEX wfx;
    wfx.wFormatTag = WAVE_FORMAT_PCM;
    wfx.nChannels = channels;
    wfx.nSamplesPerSec = sampleRate;
    wfx.wBitsPerSample = 16;
    wfx.nBlockAlign = wfx.nChannels * wfx.wBitsPerSample / 8;
    wfx.nAvgBytesPerSec = wfx.nSamplesPerSec * wfx.nBlockAlign;
    wfx.cbSize = 0;

    buffer = (short*)malloc(bufsize * sizeof(short));
    if (waveInOpen(&hWaveIn, WAVE_MAPPER, &wfx, 0, 0, CALLBACK_NULL) != MMSYSERR_NOERROR) {
        free(buffer);
        return -1;
    }
    waveHdr.lpData = (LPSTR)buffer;
    waveHdr.dwBufferLength = bufsize * sizeof(short);
    waveHdr.dwFlags = 0;
    waveHdr.dwLoops = 0;
    if (waveInPrepareHeader(hWaveIn, &waveHdr, sizeof(WAVEHDR)) != MMSYSERR_NOERROR) {
        return -2;
    }
    if (waveInAddBuffer(hWaveIn, &waveHdr, sizeof(WAVEHDR)) != MMSYSERR_NOERROR) {
        return -3;
    }
    if (waveInStart(hWaveIn) != MMSYSERR_NOERROR) {
        return -4;
    }
    return 0;
}
int read_pcm() {
    if (!(waveHdr.dwFlags & WHDR_DONE)) {
        return 0;
    }
    return (int)(waveHdr.dwBytesRecorded / sizeof(short));
}
int requeue_buffer() {
    waveHdr.dwFlags &= ~WHDR_DONE;
    waveHdr.dwBytesRecorded = 0;
    return waveInAddBuffer(hWaveIn, &waveHdr, sizeof(WAVEHDR)) == MMSYSERR_NOERROR ? 0 : -1;
}
void stop_recording() {
    waveInStop(hWaveIn);
    waveInReset(hWaveIn);
    waveInUnprepareHeader(hWaveIn, &waveHdr, sizeof(WAVEHDR));
    waveInClose(hWaveIn);
    free(buffer);
}
*/
import "C"
import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"
)

type winRecorder struct {
	isRecording bool
	onPCMData   func([]int16, int)
	stopCh      chan struct{}
	mu          sync.Mutex
	wg          sync.WaitGroup
}

func newRecorder() Recorder {
	return &winRecorder{}
}

func (r *winRecorder) StartRecording(format Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRecording {
		return errors.New("录音已在进行中")
	}
	samples := format.FrameSamples() * format.Channels

	if code := C.start_recording(C.int(format.SampleRate), C.int(format.Channels), C.int(samples)); code != 0 {
		return fmt.Errorf("打开Windows录音设备失败: %d", int(code))
	}
	r.isRecording = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	onPCM := r.onPCMData
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			n := int(C.read_pcm())
			if n <= 0 {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			buf := unsafe.Slice((*C.short)(unsafe.Pointer(C.buffer)), n)
			// waveInReset 会交回未填满的缓冲区，Opus 只接受整帧
			if onPCM != nil && n == samples {
				pcm := make([]int16, n)
				for i := 0; i < n; i++ {
					pcm[i] = int16(buf[i])
				}
				onPCM(pcm, n)
			}
			if C.requeue_buffer() != 0 {
				return
			}
		}
	}()
	return nil
}

func (r *winRecorder) StopRecording() error {
	r.mu.Lock()
	if !r.isRecording {
		r.mu.Unlock()
		return nil
	}
	close(r.stopCh)
	r.isRecording = false
	r.mu.Unlock()

	r.wg.Wait()
	C.stop_recording()
	return nil
}

func (r *winRecorder) Close() error {
	return r.StopRecording()
}

func (r *winRecorder) SetPCMDataCallback(cb func([]int16, int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPCMData = cb
}

func (r *winRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRecording
}
