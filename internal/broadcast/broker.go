// Package broadcast fans traversal events out to live subscribers such as the
// server-sent events endpoint. Delivery is lossy: with no subscribers events
// are discarded, and a subscriber that cannot keep up is disconnected.
package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/progress"
)

// Broker defaults.
const (
	DefaultClientBuffer = 256
	DefaultMaxClients   = 100
)

// Options tunes a Broker.
type Options struct {
	ClientBuffer int
	MaxClients   int
	Logger       *zap.Logger
}

// Broker implements progress.Sink and hands every consumed event to each
// subscriber's buffered channel.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	clientBuffer int
	maxClients   int
	logger       *zap.Logger
}

type client struct {
	id     string
	mu     sync.Mutex
	closed bool
	events chan progress.Event
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// send reports false when the subscriber's buffer is full.
func (c *client) send(batch []progress.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	for _, evt := range batch {
		select {
		case c.events <- evt:
		default:
			return false
		}
	}
	return true
}

// NewBroker creates an empty Broker.
func NewBroker(opts Options) *Broker {
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = DefaultClientBuffer
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Broker{
		clients:      make(map[string]*client),
		clientBuffer: opts.ClientBuffer,
		maxClients:   opts.MaxClients,
		logger:       opts.Logger,
	}
}

// Subscribe registers a subscriber. The returned channel is closed when ctx
// ends, cleanup is called, the subscriber falls behind, or the broker closes.
// ok is false when the broker is full or closed.
func (b *Broker) Subscribe(ctx context.Context) (events <-chan progress.Event, cleanup func(), ok bool) {
	b.mu.Lock()
	if b.closed || len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		closedCh := make(chan progress.Event)
		close(closedCh)
		b.logger.Warn("subscription rejected", zap.Int("max_clients", b.maxClients))
		return closedCh, func() {}, false
	}
	c := &client{id: uuid.NewString(), events: make(chan progress.Event, b.clientBuffer)}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", zap.String("client_id", c.id), zap.Int("total_clients", total))

	stop := context.AfterFunc(ctx, func() { b.remove(c.id) })
	cleanup = func() {
		stop()
		b.remove(c.id)
	}
	return c.events, cleanup, true
}

// ClientCount returns the number of connected subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Consume delivers the batch to every subscriber without blocking. Subscribers
// whose buffer is full are disconnected.
func (b *Broker) Consume(_ context.Context, batch []progress.Event) error {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()
	if len(clients) == 0 {
		return nil
	}

	var slow []string
	for _, c := range clients {
		if !c.send(batch) {
			slow = append(slow, c.id)
		}
	}
	for _, id := range slow {
		b.logger.Warn("disconnecting slow subscriber", zap.String("client_id", id))
		b.remove(id)
	}
	return nil
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()
	if ok {
		c.close()
	}
}

// Close disconnects every subscriber and rejects new ones.
func (b *Broker) Close(context.Context) error {
	b.mu.Lock()
	b.closed = true
	clients := b.clients
	b.clients = make(map[string]*client)
	b.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	return nil
}
