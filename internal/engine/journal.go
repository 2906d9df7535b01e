package engine

import (
	"context"

	"marketsim.com/pkg/wal"
)

// Journal 按记录追加的存储，*wal.Writer 满足它
type Journal interface {
	Append(payload []byte) error
	Flush() error
}

// RecordEvents 把事件流逐条追加到 j，channel 暂时取空时 flush 一次。
// ctx 取消或 ch 关闭时 flush 后返回。
func RecordEvents(ctx context.Context, ch <-chan Event, j Journal, codec EvCodec) error {
	buf := make([]byte, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return j.Flush()
		case ev, ok := <-ch:
			if !ok {
				return j.Flush()
			}
			var err error
			if buf, err = codec.Encode(buf[:0], ev); err != nil {
				return err
			}
			if err = j.Append(buf); err != nil {
				return err
			}
			if len(ch) == 0 {
				if err = j.Flush(); err != nil {
					return err
				}
			}
		}
	}
}

// ReplayEvents 按写入顺序读回 journal 文件里的事件
func ReplayEvents(path string, codec EvCodec, fn func(Event) error) (wal.ReplayStats, error) {
	return wal.Replay(path, wal.ReaderOptions{AllowTruncatedTail: true}, func(p []byte) error {
		ev, err := codec.Decode(p)
		if err != nil {
			return err
		}
		return fn(ev)
	})
}
