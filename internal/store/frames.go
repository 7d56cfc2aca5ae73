package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// 文件格式：
//
//	"PRRT" | version(1) | sampleRate(uint32) | channels(1) | frameDurationMs(uint16)
//	然后是若干帧：length(uint16) | opus packet
//
// 所有整数为大端序。
const (
	magic         = "PRRT"
	formatVersion = 1
	headerSize    = 4 + 1 + 4 + 1 + 2
)

var (
	ErrBadMagic           = errors.New("不是录音文件")
	ErrUnsupportedVersion = errors.New("不支持的录音文件版本")
	ErrFrameTooLarge      = errors.New("音频帧过大")
	ErrEmptyFrame         = errors.New("音频帧为空")
)

// Header 录音文件头
type Header struct {
	SampleRate    int
	Channels      int
	FrameDuration int // 毫秒
}

func (h Header) validate() error {
	if h.SampleRate <= 0 || int64(h.SampleRate) > math.MaxUint32 {
		return fmt.Errorf("无效的采样率: %d", h.SampleRate)
	}
	if h.Channels <= 0 || h.Channels > math.MaxUint8 {
		return fmt.Errorf("无效的通道数: %d", h.Channels)
	}
	if h.FrameDuration <= 0 || h.FrameDuration > math.MaxUint16 {
		return fmt.Errorf("无效的帧持续时间: %d", h.FrameDuration)
	}
	return nil
}

// FrameWriter 顺序写入Opus帧
type FrameWriter struct {
	f      *os.File
	w      *bufio.Writer
	frames int
}

func newFrameWriter(f *os.File, h Header) (*FrameWriter, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, headerSize)
	copy(buf, magic)
	buf[4] = formatVersion
	binary.BigEndian.PutUint32(buf[5:9], uint32(h.SampleRate))
	buf[9] = byte(h.Channels)
	binary.BigEndian.PutUint16(buf[10:12], uint16(h.FrameDuration))

	w := bufio.NewWriter(f)
	if _, err := w.Write(buf); err != nil {
		return nil, fmt.Errorf("写入文件头失败: %w", err)
	}
	return &FrameWriter{f: f, w: w}, nil
}

// WriteFrame 写入一帧
func (w *FrameWriter) WriteFrame(packet []byte) error {
	if len(packet) == 0 {
		return ErrEmptyFrame
	}
	if len(packet) > math.MaxUint16 {
		return ErrFrameTooLarge
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(packet)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(packet); err != nil {
		return err
	}
	w.frames++
	return nil
}

// Frames 已写入的帧数
func (w *FrameWriter) Frames() int {
	return w.frames
}

// Close 刷新缓冲并关闭文件
func (w *FrameWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("写入录音文件失败: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("同步录音文件失败: %w", err)
	}
	return w.f.Close()
}

// FrameReader 顺序读取Opus帧
type FrameReader struct {
	f      *os.File
	r      *bufio.Reader
	header Header
}

func newFrameReader(f *os.File) (*FrameReader, error) {
	r := bufio.NewReader(f)
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, fmt.Errorf("读取文件头失败: %w", err)
	}
	if string(buf[:4]) != magic {
		return nil, ErrBadMagic
	}
	if buf[4] != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, buf[4])
	}
	h := Header{
		SampleRate:    int(binary.BigEndian.Uint32(buf[5:9])),
		Channels:      int(buf[9]),
		FrameDuration: int(binary.BigEndian.Uint16(buf[10:12])),
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return &FrameReader{f: f, r: r, header: h}, nil
}

// Header 文件头
func (r *FrameReader) Header() Header {
	return r.header
}

// Next 读取下一帧，结束时返回 io.EOF
func (r *FrameReader) Next() ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	packet := make([]byte, n)
	if _, err := io.ReadFull(r.r, packet); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	return packet, nil
}

// Close 关闭文件
func (r *FrameReader) Close() error {
	return r.f.Close()
}
