package feed

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

// Broker 行情消息的发布订阅；单机用内存，跨进程用 NATS
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}
