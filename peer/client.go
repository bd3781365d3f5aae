package peer

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/felipemeriga/artemis/types"
	"github.com/felipemeriga/artemis/wire"
)

// DialTimeout bounds a single outbound connection attempt.
const DialTimeout = 5 * time.Second

// Dialer opens outbound sessions to peers, throttled per-address so a
// flapping peer cannot be hammered by every actor at once (spec.md §4.7
// "on failure, remove that peer" implies repeated dial attempts across
// actors; the limiter keeps those attempts from becoming a thundering herd).
type Dialer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDialer constructs a Dialer with no peers yet rate-limited.
func NewDialer() *Dialer {
	return &Dialer{limiters: make(map[string]*rate.Limiter)}
}

func (d *Dialer) limiterFor(address string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[address]
	if !ok {
		l = rate.NewLimiter(rate.Every(200*time.Millisecond), 3)
		d.limiters[address] = l
	}
	return l
}

// Dial waits for address's token bucket and then opens a TCP connection to
// it, bounded by DialTimeout.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	if err := d.limiterFor(address).Wait(ctx); err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: DialTimeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// Register opens a session to address, sends REGISTER(selfID, selfAddress),
// and returns the peer set from the reply (spec.md §4.7 Discoverer).
func Register(ctx context.Context, d *Dialer, address, selfID, selfAddress string) ([]string, error) {
	conn, err := d.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	payload := wire.RegisterPayload{ID: selfID, Address: selfAddress}
	if err := wire.WriteMessage(conn, wire.CommandRegister, payload); err != nil {
		return nil, err
	}

	reply, err := wire.ReadMessage(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}
	var set wire.PeerSetPayload
	if err := json.Unmarshal([]byte(reply.Data), &set); err != nil {
		return nil, err
	}
	return set.Peers, nil
}

// SendTransaction opens a session to address and sends tx as a TRANSACTION
// message (spec.md §4.7 Broadcaster).
func SendTransaction(ctx context.Context, d *Dialer, address string, tx *types.Transaction) error {
	conn, err := d.Dial(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Close()
	return wire.WriteMessage(conn, wire.CommandTransaction, tx)
}

// SendNewBlock opens a session to address and sends block as a NEW_BLOCK
// message (spec.md §4.7 Broadcaster).
func SendNewBlock(ctx context.Context, d *Dialer, address string, block *types.Block) error {
	conn, err := d.Dial(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Close()
	return wire.WriteMessage(conn, wire.CommandNewBlock, block)
}

// RequestChain opens a session to address, sends GET_CHAIN, and reads the
// streamed chain response (spec.md §4.6 Synchronizer).
func RequestChain(ctx context.Context, d *Dialer, address string) ([]*types.Block, error) {
	conn, err := d.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := wire.WriteMessage(conn, wire.CommandGetChain, nil); err != nil {
		return nil, err
	}
	return wire.ReadChain(bufio.NewReader(conn))
}
