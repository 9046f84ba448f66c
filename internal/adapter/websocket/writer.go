package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	sendBufferSize = 16
)

// clientWriter owns all writes to one connection. It satisfies relay.Peer.
type clientWriter struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClientWriter(conn *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *clientWriter {
	w := &clientWriter{
		conn:    conn,
		clock:   clock,
		metrics: m,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
	w.configurePongHandler()
	w.wg.Add(1)
	go w.run()
	return w
}

// Send queues data without blocking. It returns false when the buffer is
// full or the writer has stopped.
func (w *clientWriter) Send(data []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the writer. A non-empty reason is sent to the client in a
// close frame; the frame is written off the caller's goroutine.
func (w *clientWriter) Close(reason string) {
	if reason == "" {
		w.stop()
		return
	}
	go w.stopGraceful(reason)
}

func (w *clientWriter) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.send:
			start := w.clock.Now()
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// Unblocks the read loop so the connection gets unregistered.
				_ = w.conn.Close()
				return
			}
			w.metrics.MessageSendDuration.Observe(w.clock.Since(start).Seconds())
		case <-ticker.Chan():
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.metrics.PingFailures.Inc()
				_ = w.conn.Close()
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *clientWriter) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
	w.wg.Wait()
}

func (w *clientWriter) stopGraceful(reason string) {
	w.stopOnce.Do(func() {
		close(w.done)
		// The close frame must not race a write from run.
		w.wg.Wait()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		w.updateWriteDeadline()
		_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = w.conn.Close()
	})
}

func (w *clientWriter) configurePongHandler() {
	w.updateReadDeadline()
	w.conn.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		return nil
	})
}

func (w *clientWriter) updateWriteDeadline() {
	_ = w.conn.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
}

func (w *clientWriter) updateReadDeadline() {
	_ = w.conn.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}
