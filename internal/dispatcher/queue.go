// internal/dispatcher/queue.go  消息队列
package dispatcher

import (
	"context"
	"errors"
)

// ErrQueueFull 队列已满
var ErrQueueFull = errors.New("队列已满")

// MessageQueue 待投递消息队列
type MessageQueue struct {
	queue    chan *Message
	capacity int
}

// NewMessageQueue 创建新的消息队列
func NewMessageQueue(capacity int) *MessageQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MessageQueue{
		queue:    make(chan *Message, capacity),
		capacity: capacity,
	}
}

// Enqueue 非阻塞入队
func (q *MessageQueue) Enqueue(msg *Message) error {
	select {
	case q.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue 阻塞出队直到ctx结束
func (q *MessageQueue) Dequeue(ctx context.Context) (*Message, error) {
	select {
	case msg := <-q.queue:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size 获取队列当前大小
func (q *MessageQueue) Size() int {
	return len(q.queue)
}

// Capacity 获取队列容量
func (q *MessageQueue) Capacity() int {
	return q.capacity
}
