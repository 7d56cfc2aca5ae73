// Package store 管理录音文件：分配位置、按帧写入和读取Opus数据
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justa-cai/parrot-recorder/internal/device"
)

// Ext 录音文件扩展名
const Ext = ".opf"

// Store 录音目录
type Store struct {
	dir string
}

// Recording 目录中的一条录音
type Recording struct {
	Locator device.Locator
	Size    int64
	ModTime time.Time
}

// New 打开录音目录，不存在时创建
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("录音目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建录音目录失败: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir 录音目录路径
func (s *Store) Dir() string {
	return s.dir
}

// NewLocator 为新录音分配一个唯一位置，不创建文件
func (s *Store) NewLocator() device.Locator {
	return device.Locator(filepath.Join(s.dir, "rec-"+uuid.NewString()+Ext))
}

// Create 创建录音文件并写入文件头
func (s *Store) Create(loc device.Locator, h Header) (*FrameWriter, error) {
	f, err := os.OpenFile(string(loc), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("创建录音文件失败: %w", err)
	}
	w, err := newFrameWriter(f, h)
	if err != nil {
		f.Close()
		os.Remove(string(loc))
		return nil, err
	}
	return w, nil
}

// Open 打开录音文件并校验文件头
func (s *Store) Open(loc device.Locator) (*FrameReader, error) {
	f, err := os.Open(string(loc))
	if err != nil {
		return nil, fmt.Errorf("打开录音文件失败: %w", err)
	}
	r, err := newFrameReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// List 列出目录中的录音，按修改时间从新到旧
func (s *Store) List() ([]Recording, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("读取录音目录失败: %w", err)
	}

	var recs []Recording
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		recs = append(recs, Recording{
			Locator: device.Locator(filepath.Join(s.dir, e.Name())),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ModTime.After(recs[j].ModTime)
	})
	return recs, nil
}
