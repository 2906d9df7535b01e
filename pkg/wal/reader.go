package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
)

type ReaderOptions struct {
	MaxPayload int // <=0 用 DefaultMaxPayload
	// 崩溃时最后一条可能只写了一半，允许的话当作正常结束
	AllowTruncatedTail bool
	BufferSize         int
}

// Reader 顺序读记录，Next 返回 io.EOF 表示读完
type Reader struct {
	f   *os.File
	br  *bufio.Reader
	off int64
	buf []byte

	maxPayload int
	allowTail  bool

	truncatedTail bool
}

func OpenReader(path string, offset int64, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufSize
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	return &Reader{
		f:          f,
		br:         bufio.NewReaderSize(f, opts.BufferSize),
		off:        offset,
		maxPayload: opts.MaxPayload,
		allowTail:  opts.AllowTruncatedTail,
	}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) TruncatedTail() bool { return r.truncatedTail }

// LastGoodOffset 最后一条完整记录的结束位置
func (r *Reader) LastGoodOffset() int64 { return r.off }

// Next 返回的 payload 在下次调用前有效
func (r *Reader) Next() ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.tail(ErrCorruptHeader)
		}
		return nil, err
	}

	ln := int(binary.LittleEndian.Uint32(hdr[0:4]))
	crc := binary.LittleEndian.Uint32(hdr[4:8])
	if ln > r.maxPayload {
		return nil, ErrPayloadTooLarge
	}

	if cap(r.buf) < ln {
		r.buf = make([]byte, ln)
	}
	payload := r.buf[:ln]
	if _, err := io.ReadFull(r.br, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, r.tail(ErrCorruptPayload)
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, ErrChecksumMismatch
	}
	r.off += int64(headerSize + ln)
	return payload, nil
}

func (r *Reader) tail(corrupt error) error {
	r.truncatedTail = true
	if r.allowTail {
		return io.EOF
	}
	return corrupt
}

type ReplayStats struct {
	Records        int
	LastGoodOffset int64
	TruncatedTail  bool
}

// Replay 从头回放整个文件。文件不存在视为空。
func Replay(path string, opts ReaderOptions, onRecord func(payload []byte) error) (ReplayStats, error) {
	var st ReplayStats
	r, err := OpenReader(path, 0, opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	defer r.Close()

	for {
		payload, err := r.Next()
		st.LastGoodOffset = r.LastGoodOffset()
		st.TruncatedTail = r.TruncatedTail()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		if err := onRecord(payload); err != nil {
			return st, err
		}
		st.Records++
	}
}
