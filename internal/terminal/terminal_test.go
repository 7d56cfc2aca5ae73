package terminal

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyboardPresses(t *testing.T) {
	k := NewKeyboard()
	go k.Run(context.Background(), strings.NewReader("rpq"))

	var got []byte
	for b := range collect(k) {
		got = append(got, b)
	}
	assert.Equal(t, []byte("rpq"), got)
}

func collect(k *Keyboard) <-chan byte {
	out := make(chan byte)
	go func() {
		defer close(out)
		for {
			select {
			case b := <-k.Presses():
				out <- b
			case <-k.Done():
				for {
					select {
					case b := <-k.Presses():
						out <- b
					default:
						return
					}
				}
			}
		}
	}()
	return out
}

func TestKeyboardCaptureTakesNextKey(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	k := NewKeyboard()
	go k.Run(context.Background(), pr)

	result := make(chan byte, 1)
	go func() {
		b, err := k.Capture(context.Background())
		if err == nil {
			result <- b
		}
	}()

	// 等待 Capture 注册
	require.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		return k.capture != nil
	}, time.Second, 5*time.Millisecond)

	_, err := pw.Write([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, byte('y'), <-result)

	_, err = pw.Write([]byte("p"))
	require.NoError(t, err)
	select {
	case b := <-k.Presses():
		assert.Equal(t, byte('p'), b)
	case <-time.After(time.Second):
		t.Fatal("press not delivered")
	}
}

func TestKeyboardCaptureAfterClose(t *testing.T) {
	k := NewKeyboard()
	go k.Run(context.Background(), strings.NewReader(""))
	<-k.Done()

	_, err := k.Capture(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestKeyboardCaptureCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	k := NewKeyboard()
	go k.Run(context.Background(), pr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := k.Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	k.mu.Lock()
	assert.Nil(t, k.capture)
	k.mu.Unlock()
}
