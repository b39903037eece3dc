package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch chan *LocalMessage
}

// LocalPubSub is an in-process fan-out pub/sub implementation. A slow
// subscriber loses messages once its buffer is full; publishers never block.
type LocalPubSub struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	bufSize     int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subscribers: make(map[string][]*subscriber),
		bufSize:     bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.subscribers[channel] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of messages for the given channels and a
// cancel function that unsubscribes and closes it. Cancelling ctx has the
// same effect.
func (ps *LocalPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	s := &subscriber{ch: make(chan *LocalMessage, ps.bufSize)}

	ps.mu.Lock()
	for _, c := range channels {
		ps.subscribers[c] = append(ps.subscribers[c], s)
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range channels {
				list := ps.subscribers[c]
				for j, sub := range list {
					if sub == s {
						ps.subscribers[c] = append(list[:j:j], list[j+1:]...)
						break
					}
				}
				if len(ps.subscribers[c]) == 0 {
					delete(ps.subscribers, c)
				}
			}
			close(s.ch)
		})
	}
	context.AfterFunc(ctx, cancel)
	return s.ch, cancel, nil
}

// Subscribers reports how many subscriptions a channel has.
func (ps *LocalPubSub) Subscribers(channel string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[channel])
}
