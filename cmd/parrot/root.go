package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/justa-cai/parrot-recorder/internal/audio"
	"github.com/justa-cai/parrot-recorder/internal/config"
	"github.com/justa-cai/parrot-recorder/internal/permission"
	"github.com/justa-cai/parrot-recorder/internal/remote"
	"github.com/justa-cai/parrot-recorder/internal/screen"
	"github.com/justa-cai/parrot-recorder/internal/store"
	"github.com/justa-cai/parrot-recorder/internal/terminal"
	"github.com/justa-cai/parrot-recorder/internal/view"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "parrot",
		Short: "录音并回放最近一次录音",
		Long: `Record Parrot 🦜

按 r 开始/停止录音，按 p 播放最近一次录音，按 q 退出。
设置 --remote-addr 后可以通过 WebSocket (/ws) 远程操作。`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			return runScreen(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())
	cmd.AddCommand(newRecordingsCmd(v), newCheckCmd(v))
	return cmd
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(v, cmd.Flags())
	if err != nil {
		return nil, err
	}
	setLogLevel(cfg.LogLevel)
	return cfg, nil
}

func setLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("未知的日志级别: %s，使用默认级别 info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func newPermitter(cfg *config.Config, keys permission.KeySource) audio.Permitter {
	switch strings.ToLower(cfg.Microphone) {
	case config.MicrophoneGrant:
		return permission.Static(true)
	case config.MicrophoneDeny:
		return permission.Static(false)
	default:
		return permission.NewPrompter(keys, os.Stdout)
	}
}

func runScreen(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.RecordingsDir)
	if err != nil {
		return err
	}
	logrus.Infof("录音目录: %s", st.Dir())

	restore := terminal.EnableCbreak()
	defer restore()

	keyboard := terminal.NewKeyboard()
	go keyboard.Run(ctx, os.Stdin)

	dev, err := audio.NewDevice(audio.DeviceOptions{
		Store:     st,
		Permitter: newPermitter(cfg, keyboard),
		Logger:    logrus.WithField("component", "audio"),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logrus.Warnf("关闭音频设备失败: %v", err)
		}
	}()

	scr := screen.New(dev, screen.Options{
		Quality:   cfg.QualityPreset(),
		BusyGuard: cfg.BusyGuard,
		Reporter:  logrus.WithField("component", "screen"),
	})

	tv := view.NewTerminal(os.Stdout)
	hub := remote.NewHub(logrus.WithField("component", "remote"))
	scr.SetOnStateChanged(func(s screen.State) {
		tv.Render(s)
		hub.Broadcast(s)
	})

	if cfg.RemoteAddr != "" {
		srv, err := startRemote(ctx, cfg.RemoteAddr, hub, scr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	tv.Render(scr.State())
	return loop(ctx, keyboard, scr)
}

// loop 分发按键。设备操作在goroutine中执行，不阻塞输入。
func loop(ctx context.Context, keyboard *terminal.Keyboard, scr *screen.Screen) error {
	for {
		select {
		case <-ctx.Done():
			logrus.Info("接收到退出信号，正在退出...")
			return nil
		case <-keyboard.Done():
			logrus.Info("输入已结束，正在退出...")
			return nil
		case key := <-keyboard.Presses():
			switch key {
			case view.KeyPrimary, 'R', ' ':
				go scr.OnPrimaryButtonPress(ctx)
			case view.KeyPlay, 'P':
				go scr.OnPlayButtonPress(ctx)
			case view.KeyQuit, 'Q':
				logrus.Info("准备退出程序")
				return nil
			default:
				logrus.Debugf("忽略按键: %q", key)
			}
		}
	}
}

func startRemote(ctx context.Context, addr string, hub *remote.Hub, scr *screen.Screen) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听远程界面地址失败: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", remote.Handler(ctx, hub, scr))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("远程界面服务异常退出: %v", err)
		}
	}()
	logrus.Infof("远程界面已启动: ws://%s/ws", ln.Addr())
	return srv, nil
}
