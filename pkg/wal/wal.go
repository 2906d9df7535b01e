package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

// 记录格式：len(4, LE) + crc32(4, LE) + payload
const (
	headerSize      = 8
	defaultFilePerm = 0o644
	defaultBufSize  = 64 << 10
)

// DefaultMaxPayload 单条上限，防止坏长度把内存吃爆
const DefaultMaxPayload = 1 << 20

var (
	ErrCorruptHeader    = errors.New("wal: corrupt header")
	ErrCorruptPayload   = errors.New("wal: corrupt payload")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("wal: payload too large")
	ErrClosed           = errors.New("wal: writer closed")
)

// Writer 只追加。Append 写进缓冲，Flush 才落盘。
// 非并发安全，由单个协程持有。
type Writer struct {
	f   *os.File
	bw  *bufio.Writer
	off int64 // 逻辑偏移，含未 flush 的部分
	// Flush 时是否 fsync；事件流默认不 fsync，交给操作系统
	sync bool
}

type WriterOptions struct {
	BufferSize int
	Sync       bool
}

func OpenWriter(path string, opts WriterOptions) (*Writer, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufSize
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{
		f:    f,
		bw:   bufio.NewWriterSize(f, opts.BufferSize),
		off:  st.Size(),
		sync: opts.Sync,
	}, nil
}

func (w *Writer) Append(payload []byte) error {
	if w.f == nil {
		return ErrClosed
	}
	if len(payload) > DefaultMaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:], crc32.ChecksumIEEE(payload))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.bw.Write(payload); err != nil {
		return err
	}
	w.off += int64(headerSize + len(payload))
	return nil
}

// Offset 下一条记录的起始位置
func (w *Writer) Offset() int64 { return w.off }

func (w *Writer) Flush() error {
	if w.f == nil {
		return ErrClosed
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if w.sync {
		return w.f.Sync()
	}
	return nil
}

func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	if err := w.bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// TruncateTo 截掉 offset 之后的内容，用于丢弃半写的尾部。
// 文件不存在或 offset 超过文件大小时什么都不做。
func TruncateTo(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("wal: negative truncate offset %d", offset)
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if offset >= st.Size() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(offset); err != nil {
		return err
	}
	_ = f.Sync()
	return nil
}
