// Package mirror copies the operator transcript to chat channels. A Mirror is
// a relay.Renderer: Render only enqueues, and a background goroutine posts
// the messages in order.
package mirror

import (
	"context"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zulandar/switchboard/internal/relay"
)

const (
	queueSize   = 256
	postTimeout = 30 * time.Second
)

// postFunc delivers one formatted message.
type postFunc func(ctx context.Context, text string) error

// formatFunc renders a transcript message for a platform.
type formatFunc func(msg relay.ChatMessage) string

// Mirror forwards transcript messages to one channel.
type Mirror struct {
	name   string
	post   postFunc
	format formatFunc

	queue  chan relay.ChatMessage
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	dropped   int
}

var _ relay.Renderer = (*Mirror)(nil)

func newMirror(name string, post postFunc, format formatFunc) *Mirror {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		name:   name,
		post:   post,
		format: format,
		queue:  make(chan relay.ChatMessage, queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Name returns the platform name.
func (m *Mirror) Name() string { return m.name }

// Render queues msg. When the queue is full the message is dropped.
func (m *Mirror) Render(msg relay.ChatMessage) {
	select {
	case <-m.ctx.Done():
		return
	default:
	}
	select {
	case m.queue <- msg:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (m *Mirror) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close posts what is already queued, then stops. Messages rendered after
// Close are ignored.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
	})
}

func (m *Mirror) run() {
	defer close(m.done)
	for {
		select {
		case msg := <-m.queue:
			m.deliver(msg)
		case <-m.ctx.Done():
			for {
				select {
				case msg := <-m.queue:
					m.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) deliver(msg relay.ChatMessage) {
	text := m.format(msg)
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()
	if err := m.post(ctx, text); err != nil {
		log.Printf("mirror: %s: post: %v", m.name, err)
	}
}

// truncate cuts s to at most n characters, marking the cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
