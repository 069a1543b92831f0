package dispatch

import (
	"context"
	"sync"
)

// Sent is one message captured by a Recorder
type Sent struct {
	To       string
	Body     string
	MediaURL string
}

// Recorder is a Transport that keeps everything it is asked to send.
// It backs the local development transport and tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	// Fail, when set, decides per recipient whether the send errors
	Fail func(to string) error
}

func (r *Recorder) SendText(ctx context.Context, to, body string) error {
	if err := r.fail(to); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{To: to, Body: body})
	return nil
}

func (r *Recorder) SendMedia(ctx context.Context, to, mediaURL, caption string) error {
	if err := r.fail(to); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{To: to, Body: caption, MediaURL: mediaURL})
	return nil
}

func (r *Recorder) fail(to string) error {
	if r.Fail == nil {
		return nil
	}
	return r.Fail(to)
}

// Sent returns a copy of everything recorded so far
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// SentTo returns the messages recorded for one address
func (r *Recorder) SentTo(to string) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}
