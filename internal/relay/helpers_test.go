package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/protocol"
)

const testSecret = "relay-test-secret-token"

var testStart = time.Date(2025, 4, 9, 3, 0, 0, 0, time.UTC)

// fakePeer records every frame the relay sends it.
type fakePeer struct {
	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	closeReason string
	full        bool
}

func (p *fakePeer) Send(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.full {
		return false
	}
	p.frames = append(p.frames, data)
	return true
}

func (p *fakePeer) Close(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeReason = reason
}

func (p *fakePeer) setFull(full bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.full = full
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// messages returns the decoded frames of type t in arrival order.
func (p *fakePeer) messages(t protocol.MessageType) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []map[string]any
	for _, f := range p.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			continue
		}
		if m["type"] == string(t) {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePeer) count(t protocol.MessageType) int {
	return len(p.messages(t))
}

func (p *fakePeer) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// botStatusEvents returns how many bot_status events with the given state p received.
func (p *fakePeer) botStatusEvents(state protocol.BotState) int {
	n := 0
	for _, m := range p.messages(protocol.TypeBotStatus) {
		if m["status"] == string(state) {
			n++
		}
	}
	return n
}

// panicPeer panics on every send.
type panicPeer struct{ fakePeer }

func (p *panicPeer) Send([]byte) bool { panic("peer exploded") }

func newTestRelay(t *testing.T) (*Relay, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testStart)
	r := New(Options{BotSecret: testSecret, Clock: clock})
	t.Cleanup(r.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "liveness ticker was never created")

	return r, clock
}

// flush waits until every command queued so far has been handled.
func flush(t *testing.T, r *Relay) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.query(ctx, func() {}))
}

// advanceToSweep moves the clock forward by one liveness interval and waits
// for the resulting sweep to be handled.
func advanceToSweep(t *testing.T, r *Relay, clock *clockwork.FakeClock) {
	t.Helper()
	clock.Advance(livenessInterval)
	want := clock.Now()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(r.metrics.LastSweep) >= float64(want.Unix())
	}, 2*time.Second, 5*time.Millisecond)
	flush(t, r)
}

func connect(t *testing.T, r *Relay) (uuid.UUID, *fakePeer) {
	t.Helper()
	peer := &fakePeer{}
	id, err := r.Register(peer)
	require.NoError(t, err)
	return id, peer
}

func send(t *testing.T, r *Relay, id uuid.UUID, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	r.Deliver(id, data)
}

func sendRaw(r *Relay, id uuid.UUID, raw string) {
	r.Deliver(id, []byte(raw))
}

func connectBot(t *testing.T, r *Relay) (uuid.UUID, *fakePeer) {
	t.Helper()
	id, peer := connect(t, r)
	send(t, r, id, protocol.NewAuthBot(testSecret))
	flush(t, r)
	require.Equal(t, 1, peer.count(protocol.TypeAuthSuccess), "bot auth failed")
	return id, peer
}

func connectUser(t *testing.T, r *Relay, userID, username string) (uuid.UUID, *fakePeer) {
	t.Helper()
	id, peer := connect(t, r)
	send(t, r, id, protocol.NewAuthUser(userID, username))
	flush(t, r)
	require.Equal(t, 1, peer.count(protocol.TypeAuthSuccess), "dashboard auth failed")
	return id, peer
}

func botStatus(t *testing.T, r *Relay) domain.BotStatus {
	t.Helper()
	s, err := r.BotStatus(context.Background())
	require.NoError(t, err)
	return s
}
