// Package dispatch hands outbound messages to the notification transport.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const DefaultMaxChunk = 1600

var ErrEmptyBody = errors.New("message body is empty")

// Transport is the outbound messaging channel (e.g. WhatsApp)
type Transport interface {
	SendText(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to, mediaURL, caption string) error
}

// Dispatcher chunks oversized text and bounds every transport call by a timeout
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	maxChunk  int
	logger    *zap.Logger
}

func New(transport Transport, timeout time.Duration, maxChunk int, logger *zap.Logger) *Dispatcher {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		transport: transport,
		timeout:   timeout,
		maxChunk:  maxChunk,
		logger:    logger,
	}
}

// SendText sends body to the address, split into ordered parts of at most
// maxChunk characters. It stops at the first failed part.
func (d *Dispatcher) SendText(ctx context.Context, to, body string) error {
	if body == "" {
		return ErrEmptyBody
	}

	parts := Chunk(body, d.maxChunk)
	for i, part := range parts {
		err := d.withTimeout(ctx, func(ctx context.Context) error {
			return d.transport.SendText(ctx, to, part)
		})
		if err != nil {
			d.logger.Error("[SendText] err transport.SendText",
				zap.String("to", to),
				zap.Int("part", i+1),
				zap.Int("parts", len(parts)),
				zap.Error(err))
			return fmt.Errorf("failed to send part %d/%d to %s: %w", i+1, len(parts), to, err)
		}
	}
	return nil
}

// SendMedia sends a media reference with an optional caption
func (d *Dispatcher) SendMedia(ctx context.Context, to, mediaURL, caption string) error {
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		return d.transport.SendMedia(ctx, to, mediaURL, caption)
	})
	if err != nil {
		d.logger.Error("[SendMedia] err transport.SendMedia", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("failed to send media to %s: %w", to, err)
	}
	return nil
}

// withTimeout runs fn with a deadline and returns when either fn finishes or
// the deadline passes, so a transport that ignores its context cannot hang the caller
func (d *Dispatcher) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chunk splits s into consecutive parts of at most size characters (runes)
func Chunk(s string, size int) []string {
	if size <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	if len(runes) <= size {
		return []string{s}
	}

	parts := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
