package progress

import (
	"context"
	"errors"
	"sync"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

// ErrConsumerGone is returned by Send once nobody is listening any more.
var ErrConsumerGone = errors.New("progress consumer gone")

// ChannelSink hands events to an in-process consumer such as an SSE
// handler. done is closed when the consumer disconnects.
type ChannelSink struct {
	ch        chan models.ProgressEvent
	done      <-chan struct{}
	closeOnce sync.Once
}

func NewChannelSink(buffer int, done <-chan struct{}) *ChannelSink {
	return &ChannelSink{
		ch:   make(chan models.ProgressEvent, buffer),
		done: done,
	}
}

// Events is the consumer side. It is closed by Close.
func (s *ChannelSink) Events() <-chan models.ProgressEvent { return s.ch }

func (s *ChannelSink) Send(ctx context.Context, ev models.ProgressEvent) error {
	if !s.Alive() {
		return ErrConsumerGone
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close ends the event stream. Only the producer may call it.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Discard accepts and drops every event, for runs nobody watches.
type Discard struct{}

func (Discard) Send(context.Context, models.ProgressEvent) error { return nil }
func (Discard) Alive() bool                                      { return true }
