// Package terminal 终端按键输入
package terminal

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrClosed 输入已结束
var ErrClosed = errors.New("终端输入已关闭")

// EnableCbreak 关闭回显并进入cbreak模式，返回恢复函数
func EnableCbreak() (restore func()) {
	if err := exec.Command("stty", "-F", "/dev/tty", "cbreak", "min", "1").Run(); err != nil {
		logrus.Errorf("设置终端cbreak模式失败: %v", err)
	}
	if err := exec.Command("stty", "-F", "/dev/tty", "-echo").Run(); err != nil {
		logrus.Errorf("关闭终端回显失败: %v", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := exec.Command("stty", "-F", "/dev/tty", "echo").Run(); err != nil {
				logrus.Errorf("恢复终端回显失败: %v", err)
			}
			if err := exec.Command("stty", "-F", "/dev/tty", "-cbreak").Run(); err != nil {
				logrus.Errorf("恢复终端规范模式失败: %v", err)
			}
			logrus.Debug("已恢复终端设置")
		})
	}
}

// Keyboard 把输入的字节分发给按键通道，有等待中的 Capture 时优先交给它
type Keyboard struct {
	presses chan byte
	done    chan struct{}

	mu      sync.Mutex
	capture chan byte
}

// NewKeyboard 创建键盘
func NewKeyboard() *Keyboard {
	return &Keyboard{
		presses: make(chan byte, 16),
		done:    make(chan struct{}),
	}
}

// Presses 普通按键
func (k *Keyboard) Presses() <-chan byte {
	return k.presses
}

// Done 输入结束后关闭
func (k *Keyboard) Done() <-chan struct{} {
	return k.done
}

// Run 从 r 读取按键直到出错或 ctx 结束
func (k *Keyboard) Run(ctx context.Context, r io.Reader) {
	defer close(k.done)

	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.Errorf("读取输入失败: %v", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		k.mu.Lock()
		c := k.capture
		k.capture = nil
		k.mu.Unlock()

		if c != nil {
			c <- b[0]
			continue
		}

		select {
		case k.presses <- b[0]:
		case <-ctx.Done():
			return
		default:
			logrus.Warn("按键队列已满，丢弃按键")
		}
	}
}

// Capture 等待下一个按键，该按键不会出现在 Presses 中
func (k *Keyboard) Capture(ctx context.Context) (byte, error) {
	c := make(chan byte, 1)
	k.mu.Lock()
	k.capture = c
	k.mu.Unlock()

	select {
	case b := <-c:
		return b, nil
	case <-k.done:
		k.release(c)
		return 0, ErrClosed
	case <-ctx.Done():
		k.release(c)
		return 0, ctx.Err()
	}
}

func (k *Keyboard) release(c chan byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.capture == c {
		k.capture = nil
	}
}
