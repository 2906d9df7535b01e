package engine

import (
	"bufio"
	"context"
	"io"

	"github.com/segmentio/encoding/json"
)

type evJSON struct {
	V  uint8 `json:"v"`
	Ev Event `json:"ev"`
}

// JSONEvCodec 事件编码为一行可读 JSON
type JSONEvCodec struct{ Version uint8 }

func (c JSONEvCodec) Encode(dst []byte, ev Event) ([]byte, error) {
	b, err := json.Marshal(evJSON{V: c.Version, Ev: ev})
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

func (c JSONEvCodec) Decode(payload []byte) (Event, error) {
	var rec evJSON
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Event{}, err
	}
	return rec.Ev, nil
}

// WriteEvents 把事件流按行写到 w，直到 ctx 取消或 ch 关闭。
// 每条事件后 flush，保证 tail -f 能实时看到。
func WriteEvents(ctx context.Context, ch <-chan Event, w io.Writer, codec EvCodec) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return bw.Flush()
		case ev, ok := <-ch:
			if !ok {
				return bw.Flush()
			}
			var err error
			buf, err = codec.Encode(buf[:0], ev)
			if err != nil {
				return err
			}
			buf = append(buf, '\n')
			if _, err = bw.Write(buf); err != nil {
				return err
			}
			if err = bw.Flush(); err != nil {
				return err
			}
		}
	}
}
