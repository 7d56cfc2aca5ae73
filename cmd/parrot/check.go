package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/justa-cai/parrot-recorder/internal/audio"
	"github.com/justa-cai/parrot-recorder/internal/config"
	"github.com/justa-cai/parrot-recorder/internal/device"
	"github.com/justa-cai/parrot-recorder/internal/permission"
	"github.com/justa-cai/parrot-recorder/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCheckCmd(v *viper.Viper) *cobra.Command {
	var (
		mode    string
		seconds int
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "检查音频设备：sine=播放1K正弦波, record=录音后回放",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			if seconds <= 0 {
				return fmt.Errorf("时长必须大于0: %d", seconds)
			}
			switch strings.ToLower(mode) {
			case "sine":
				return runSineCheck(cfg, time.Duration(seconds)*time.Second)
			case "record":
				return runRecordCheck(cmd.Context(), cfg, time.Duration(seconds)*time.Second)
			default:
				return fmt.Errorf("未知模式: %s", mode)
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "sine", "检查模式 (sine, record)")
	cmd.Flags().IntVar(&seconds, "seconds", 2, "播放或录音的秒数")
	return cmd
}

// sineFrames 生成指定时长的1kHz正弦波帧
func sineFrames(format audio.Format, d time.Duration) [][]int16 {
	const freq = 1000.0
	const amplitude = 0.3 * math.MaxInt16

	samples := format.FrameSamples()
	total := int(d.Seconds() * float64(format.SampleRate))
	var frames [][]int16
	for start := 0; start < total; start += samples {
		frame := make([]int16, samples*format.Channels)
		for i := 0; i < samples; i++ {
			t := float64(start+i) / float64(format.SampleRate)
			v := int16(amplitude * math.Sin(2*math.Pi*freq*t))
			for c := 0; c < format.Channels; c++ {
				frame[i*format.Channels+c] = v
			}
		}
		frames = append(frames, frame)
	}
	return frames
}

func runSineCheck(cfg *config.Config, d time.Duration) error {
	format, err := audio.FormatFor(cfg.QualityPreset())
	if err != nil {
		return err
	}
	player := audio.NewPlayer(format)
	defer player.Close()
	if player.IsDummyMode() {
		logrus.Warn("播放器在哑模式下运行，听不到声音")
	}
	if err := player.Start(); err != nil {
		return err
	}

	logrus.Infof("播放1kHz正弦波%v...", d)
	for _, frame := range sineFrames(format, d) {
		player.QueuePCMAudio(frame)
	}
	for player.QueueLength() > 0 {
		time.Sleep(20 * time.Millisecond)
	}
	logrus.Info("播放结束")
	return nil
}

func runRecordCheck(ctx context.Context, cfg *config.Config, d time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.New(cfg.RecordingsDir)
	if err != nil {
		return err
	}
	dev, err := audio.NewDevice(audio.DeviceOptions{
		Store:     st,
		Permitter: permission.Static(true),
		Logger:    logrus.WithField("component", "audio"),
	})
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Configure(ctx, device.ModeOptions{RecordingEnabled: true, PlayInSilentMode: true}); err != nil {
		return err
	}
	session, err := dev.OpenRecordingSession(ctx, cfg.QualityPreset())
	if err != nil {
		return err
	}
	logrus.Infof("开始录音%v...", d)
	if err := session.Start(ctx); err != nil {
		return err
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}

	status, err := session.StopAndFinalize(ctx)
	if err != nil {
		return err
	}
	if status.StillActive {
		return fmt.Errorf("录音没有正确停止")
	}
	logrus.Infof("录音结束: %s，开始回放", session.ResourceLocator())

	if err := dev.Configure(ctx, device.ModeOptions{PlayInSilentMode: true}); err != nil {
		return err
	}
	playback, err := dev.CreatePlayback(ctx, session.ResourceLocator(), true)
	if err != nil {
		return err
	}
	if err := <-playback.Done(); err != nil {
		return err
	}
	logrus.Info("回放结束")
	return nil
}
