// Package permission 麦克风权限
package permission

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Static 固定的权限结果
type Static bool

// RequestPermission 直接返回固定结果
func (s Static) RequestPermission(context.Context) (bool, error) {
	return bool(s), nil
}

// KeySource 读取单个按键
type KeySource interface {
	Capture(ctx context.Context) (byte, error)
}

// Prompter 在终端询问一次是否允许使用麦克风，之后记住结果
type Prompter struct {
	keys KeySource
	out  io.Writer

	mu      sync.Mutex
	decided bool
	granted bool
}

// NewPrompter 创建终端权限询问
func NewPrompter(keys KeySource, out io.Writer) *Prompter {
	return &Prompter{keys: keys, out: out}
}

// RequestPermission 第一次调用时询问用户，y/Y 表示允许
func (p *Prompter) RequestPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.decided {
		return p.granted, nil
	}

	fmt.Fprint(p.out, "\r\n允许使用麦克风录音吗? [y/N] ")
	key, err := p.keys.Capture(ctx)
	if err != nil {
		fmt.Fprint(p.out, "\r\n")
		return false, fmt.Errorf("读取权限回答失败: %w", err)
	}
	fmt.Fprintf(p.out, "%c\r\n", printable(key))

	p.decided = true
	p.granted = key == 'y' || key == 'Y'
	logrus.Debugf("麦克风权限: %v", p.granted)
	return p.granted, nil
}

func printable(b byte) byte {
	if b < 0x20 || b > 0x7e {
		return ' '
	}
	return b
}
