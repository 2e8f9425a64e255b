package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

// LogEvent is delivered to every observer of a (programID, commitment) log
// subscription.
type LogEvent struct {
	Signature string
	Logs      []string
	Err       error
}

// SlotEvent is delivered to every observer of the slot subscription.
type SlotEvent struct {
	Slot   uint64
	Parent uint64
}

type logSub struct {
	refCount  int
	cancel    context.CancelFunc
	observers map[int]func(LogEvent)
	nextID    int
}

type slotSub struct {
	refCount  int
	cancel    context.CancelFunc
	observers map[int]func(SlotEvent)
	nextID    int
}

// Multiplexer reference-counts subscriptions keyed by (programID,
// commitment) for logs and by a literal key for slots. On first subscriber
// it opens the underlying chain subscription; on last unsubscribe it closes
// it. Delivery to observers is synchronous and isolated: one observer's
// panic/error is logged and counted without affecting the others.
type Multiplexer struct {
	logger *zap.Logger
	wsURL  string

	mu        sync.Mutex
	logSubs   map[string]*logSub
	slotSubs  map[string]*slotSub
	obsFailures int
}

// NewMultiplexer constructs a Multiplexer dialing wsURL lazily on first
// subscription.
func NewMultiplexer(logger *zap.Logger, wsURL string) *Multiplexer {
	return &Multiplexer{
		logger:   logger.Named("chain.mux"),
		wsURL:    wsURL,
		logSubs:  make(map[string]*logSub),
		slotSubs: make(map[string]*slotSub),
	}
}

func logKey(programID solana.PublicKey, commitment rpc.CommitmentType) string {
	return fmt.Sprintf("%s|%s", programID, commitment)
}

// SubscribeLogs registers observer for logs mentioning programID at the
// given commitment, opening the underlying subscription if this is the
// first subscriber for that key. Returns an unsubscribe function.
func (m *Multiplexer) SubscribeLogs(ctx context.Context, programID solana.PublicKey, commitment rpc.CommitmentType, observer func(LogEvent)) (func(), error) {
	key := logKey(programID, commitment)

	m.mu.Lock()
	sub, exists := m.logSubs[key]
	if !exists {
		subCtx, cancel := context.WithCancel(context.Background())
		sub = &logSub{cancel: cancel, observers: make(map[int]func(LogEvent))}
		m.logSubs[key] = sub
		if err := m.openLogSubscription(subCtx, key, programID, commitment); err != nil {
			delete(m.logSubs, key)
			cancel()
			m.mu.Unlock()
			return nil, fmt.Errorf("open log subscription: %w", err)
		}
	}
	id := sub.nextID
	sub.nextID++
	sub.observers[id] = observer
	sub.refCount++
	m.mu.Unlock()

	return func() { m.unsubscribeLogs(key, id) }, nil
}

func (m *Multiplexer) unsubscribeLogs(key string, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.logSubs[key]
	if !ok {
		return
	}
	delete(sub.observers, id)
	sub.refCount--
	if sub.refCount <= 0 {
		sub.cancel()
		delete(m.logSubs, key)
		m.logger.Info("closed log subscription, last unsubscribe", zap.String("key", key))
	}
}

func (m *Multiplexer) openLogSubscription(ctx context.Context, key string, programID solana.PublicKey, commitment rpc.CommitmentType) error {
	client, err := ws.Connect(ctx, m.wsURL)
	if err != nil {
		return err
	}
	wsSub, err := client.LogsSubscribeMentions(programID, commitment)
	if err != nil {
		client.Close()
		return err
	}
	go func() {
		defer client.Close()
		defer wsSub.Unsubscribe()
		for {
			got, err := wsSub.Recv(ctx)
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err != nil {
				m.dispatchLogs(key, LogEvent{Err: err})
				return
			}
			ev := LogEvent{
				Signature: got.Value.Signature.String(),
				Logs:      got.Value.Logs,
			}
			m.dispatchLogs(key, ev)
		}
	}()
	return nil
}

func (m *Multiplexer) dispatchLogs(key string, ev LogEvent) {
	m.mu.Lock()
	sub, ok := m.logSubs[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	observers := make([]func(LogEvent), 0, len(sub.observers))
	for _, o := range sub.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()

	for _, o := range observers {
		m.safeCallLog(o, ev)
	}
}

func (m *Multiplexer) safeCallLog(o func(LogEvent), ev LogEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			m.obsFailures++
			m.mu.Unlock()
			m.logger.Error("log observer panicked", zap.Any("recover", r))
		}
	}()
	o(ev)
}

const slotKey = "slot"

// SubscribeSlots registers observer for slot-change notifications, opening
// the underlying subscription on first subscriber. Returns an unsubscribe
// function.
func (m *Multiplexer) SubscribeSlots(observer func(SlotEvent)) (func(), error) {
	m.mu.Lock()
	sub, exists := m.slotSubs[slotKey]
	if !exists {
		ctx, cancel := context.WithCancel(context.Background())
		sub = &slotSub{cancel: cancel, observers: make(map[int]func(SlotEvent))}
		m.slotSubs[slotKey] = sub
		if err := m.openSlotSubscription(ctx); err != nil {
			delete(m.slotSubs, slotKey)
			cancel()
			m.mu.Unlock()
			return nil, fmt.Errorf("open slot subscription: %w", err)
		}
	}
	id := sub.nextID
	sub.nextID++
	sub.observers[id] = observer
	sub.refCount++
	m.mu.Unlock()

	return func() { m.unsubscribeSlots(id) }, nil
}

func (m *Multiplexer) unsubscribeSlots(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.slotSubs[slotKey]
	if !ok {
		return
	}
	delete(sub.observers, id)
	sub.refCount--
	if sub.refCount <= 0 {
		sub.cancel()
		delete(m.slotSubs, slotKey)
		m.logger.Info("closed slot subscription, last unsubscribe")
	}
}

func (m *Multiplexer) openSlotSubscription(ctx context.Context) error {
	client, err := ws.Connect(ctx, m.wsURL)
	if err != nil {
		return err
	}
	wsSub, err := client.SlotSubscribe()
	if err != nil {
		client.Close()
		return err
	}
	go func() {
		defer client.Close()
		defer wsSub.Unsubscribe()
		for {
			got, err := wsSub.Recv(ctx)
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err != nil {
				return
			}
			m.dispatchSlots(SlotEvent{Slot: got.Slot, Parent: got.Parent})
		}
	}()
	return nil
}

func (m *Multiplexer) dispatchSlots(ev SlotEvent) {
	m.mu.Lock()
	sub, ok := m.slotSubs[slotKey]
	if !ok {
		m.mu.Unlock()
		return
	}
	observers := make([]func(SlotEvent), 0, len(sub.observers))
	for _, o := range sub.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()

	for _, o := range observers {
		m.safeCallSlot(o, ev)
	}
}

func (m *Multiplexer) safeCallSlot(o func(SlotEvent), ev SlotEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			m.obsFailures++
			m.mu.Unlock()
			m.logger.Error("slot observer panicked", zap.Any("recover", r))
		}
	}()
	o(ev)
}

// ActiveLogSubscriptions returns the count of currently open log
// subscription keys — exercised by tests asserting "exactly one chain
// subscription exists per key iff ref_count > 0".
func (m *Multiplexer) ActiveLogSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logSubs)
}

// RefCount returns the current observer count for a log subscription key,
// or 0 if it is not currently open.
func (m *Multiplexer) RefCount(programID solana.PublicKey, commitment rpc.CommitmentType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.logSubs[logKey(programID, commitment)]
	if !ok {
		return 0
	}
	return sub.refCount
}
