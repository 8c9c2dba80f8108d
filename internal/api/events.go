package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/schedule"
)

const (
	clientBuffer      = 32
	heartbeatInterval = 30 * time.Second
)

// settledEvent announces a finished fetch.
type settledEvent struct {
	Key     domain.CacheKey `json:"key"`
	Changed bool            `json:"changed"`
	Items   int             `json:"items"`
	Error   string          `json:"error,omitempty"`
	Note    string          `json:"note,omitempty"`
}

// broker fans settlements out to connected event streams. A client that
// falls behind loses events rather than stalling the fetch that published.
type broker struct {
	mu          sync.Mutex
	clients     map[chan settledEvent]struct{}
	closed      bool
	done        chan struct{}
	unsubscribe func()
	logger      *slog.Logger
}

func newBroker(logger *slog.Logger) *broker {
	return &broker{
		clients: make(map[chan settledEvent]struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

func (b *broker) publish(s schedule.Settlement) {
	ev := settledEvent{
		Key:     s.Entry.Key,
		Changed: s.Changed,
		Items:   len(s.Entry.Items),
		Note:    s.Entry.Note(time.Now()),
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("event stream behind, dropping event", "key", ev.Key.String())
		}
	}
}

func (b *broker) connect() (chan settledEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan settledEvent, clientBuffer)
	b.clients[ch] = struct{}{}
	return ch, true
}

func (b *broker) disconnect(ch chan settledEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, ch)
}

// close must not hold mu while unsubscribing: the coordinator calls publish
// with its observer lock held.
func (b *broker) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	unsubscribe := b.unsubscribe
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (b *broker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// handleEvents streams settle notifications as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported", s.logger)
		return
	}

	ch, ok := s.events.connect()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down", s.logger)
		return
	}
	defer s.events.disconnect(ch)

	if err := sendEvent(w, rc, "connected", map[string]string{"message": "listening for schedule updates"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev := <-ch:
			if err := sendEvent(w, rc, "settled", ev); err != nil {
				s.logger.Debug("event client disconnected", "error", err)
				return
			}
		case <-heartbeat.C:
			if err := sendEvent(w, rc, "heartbeat", map[string]int64{"ts": time.Now().Unix()}); err != nil {
				return
			}
		case <-s.events.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func sendEvent(w http.ResponseWriter, rc *http.ResponseController, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return rc.Flush()
}
