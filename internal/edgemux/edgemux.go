// Package edgemux provides an abstraction over the serial capture adapter
// with the ability for multiple clients to subscribe to its edge-record
// stream and send commands to a single adapter device.
package edgemux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/keyfob.report/internal/units"
)

var ErrWriteFailed = fmt.Errorf("failed to write to capture adapter")

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// SerialPorter is what EdgeMux needs from a capture adapter connection.
// go.bug.st/serial ports satisfy it, as do the in-memory ports the tests and
// the mock adapter use.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// EdgeMux is a generic capture-adapter multiplexer that allows multiple
// clients to subscribe to lines from a single adapter's serial port.
type EdgeMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	// TickRate is the capture counter rate programmed by Initialize.
	TickRate uint32
}

// EdgeMuxInterface defines the interface for the EdgeMux type.
type EdgeMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the
	// adapter. The channel ID identifies the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the adapter.
	SendCommand(string) error
	// Monitor reads lines from the adapter and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	Initialize() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given
	// HTTP mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewEdgeMux creates an EdgeMux instance backed by a serial port. TickRate
// defaults to the 2 MHz counter the stock firmware boots with.
func NewEdgeMux[T SerialPorter](port T) *EdgeMux[T] {
	return &EdgeMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
		TickRate:    units.Rate2MHz,
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *EdgeMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the edge mux.
func (s *EdgeMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize programs the adapter for streaming: query firmware status, set
// the capture counter rate, zero the counter, and turn the edge stream on.
func (s *EdgeMux[T]) Initialize() error {
	if !units.IsValidTickRate(s.TickRate) {
		return fmt.Errorf("unsupported tick rate %d Hz: firmware accepts %s", s.TickRate, units.ValidTickRatesString())
	}

	// V? makes the adapter emit a status line that the monitor loop
	// records into the current adapter state.
	if err := s.SendCommand("V?"); err != nil {
		return fmt.Errorf("failed to query adapter status: %w", err)
	}

	if err := s.SendCommand(fmt.Sprintf("T=%d", s.TickRate)); err != nil {
		return fmt.Errorf("failed to set tick rate: %w", err)
	}

	for _, command := range []string{
		"Z",  // zero the capture counter
		"S1", // enable edge streaming
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}

	return nil
}

// SendCommand sends a command to the capture adapter.
func (s *EdgeMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // adapter commands are newline terminated
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads adapter lines and fans them out to subscribers.
func (s *EdgeMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// Read in a separate goroutine so the blocking scan.Scan cannot keep
	// the outer loop from noticing context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// channel closed means the port hit EOF
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// skip a full subscriber rather than stall
					// the stream for everyone
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *EdgeMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *EdgeMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	AttachAdminRoutesForMux(mux, s)
}

// AttachAdminRoutesForMux registers the adapter debug routes against any
// EdgeMuxInterface. Wrappers such as reload managers use this to expose the
// same admin surface without re-implementing it.
func AttachAdminRoutesForMux(mux *http.ServeMux, m EdgeMuxInterface) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API
	// endpoints.
	debug.HandleFunc("send-command", "send a command to the capture adapter", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write a command to the adapter
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := m.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to capture adapter", command))
	})

	// API endpoint to issue Server-Sent Events (SSE) for lines coming
	// from the adapter.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
