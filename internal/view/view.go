// Package view 终端界面：标题和两个按钮
package view

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/justa-cai/parrot-recorder/internal/screen"
)

const (
	HeadingRecording = "Recording 🦜"
	HeadingIdle      = "Record Parrot 🦜"
)

// 按键
const (
	KeyPrimary = 'r'
	KeyPlay    = 'p'
	KeyQuit    = 'q'
)

var (
	accent = lipgloss.Color("#FF4500")

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Padding(1, 2)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(accent).
			Padding(0, 2).
			Margin(0, 1)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// Heading 标题
func Heading(st screen.State) string {
	if st.IsRecording {
		return HeadingRecording
	}
	return HeadingIdle
}

// PrimaryLabel 录音/停止按钮文字
func PrimaryLabel(st screen.State) string {
	if st.IsRecording {
		return "■ 停止"
	}
	return "● 录音"
}

// PlayLabel 播放按钮文字
func PlayLabel() string {
	return "▶ 播放"
}

// Terminal 把状态渲染到终端
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal 创建终端界面
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// clearScreen 光标回到左上角并清屏
const clearScreen = "\x1b[H\x1b[2J"

// Render 在原位置重绘当前状态，可以从多个goroutine调用
func (t *Terminal) Render(st screen.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, clearScreen+Frame(st)+"\r\n")
}

// Frame 返回完整的一帧界面
func Frame(st screen.State) string {
	buttons := lipgloss.JoinHorizontal(lipgloss.Center,
		buttonStyle.Render(PrimaryLabel(st)),
		buttonStyle.Render(PlayLabel()),
	)

	hint := fmt.Sprintf("[%c] 录音/停止  [%c] 播放  [%c] 退出", KeyPrimary, KeyPlay, KeyQuit)
	if st.Busy {
		hint += "  (处理中...)"
	}

	last := "还没有录音"
	if st.HasRecording() {
		last = "最近录音: " + string(st.LastRecording)
	}

	return lipgloss.JoinVertical(lipgloss.Center,
		headingStyle.Render(Heading(st)),
		buttons,
		hintStyle.Render(hint),
		hintStyle.Render(last),
	)
}
