package edgemux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledEdgeMux stands in for the capture adapter when the daemon runs
// with --disable-rf. Every operation succeeds and does nothing, but
// subscriber channels are still tracked and closed on Unsubscribe or Close
// so HTTP streams and decoder loops shut down the same way they would
// against real hardware.
type DisabledEdgeMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabledEdgeMux() *DisabledEdgeMux {
	return &DisabledEdgeMux{subscribers: make(map[string]chan string)}
}

// Subscribe hands out a channel that will never carry a line. After Close it
// returns an already-closed channel so late subscribers cannot block.
func (d *DisabledEdgeMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledEdgeMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledEdgeMux) Initialize() error        { return nil }
func (d *DisabledEdgeMux) SendCommand(string) error { return nil }

// Monitor parks until cancelled; there is no stream to read.
func (d *DisabledEdgeMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledEdgeMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

// AttachAdminRoutes registers a single marker endpoint in place of the usual
// adapter debug surface, so an operator poking /debug can tell RF capture is
// off rather than broken.
func (d *DisabledEdgeMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/rf-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("rf capture disabled"))
	})
}
