package app

import (
	"context"
	"sync"
	"time"
)

type SyncState int

const (
	StateUnsynced SyncState = iota
	StateSynced
)

const DefaultPollInterval = 2 * time.Second

// ConfigSync keeps a cached Classroom fresh against out-of-band edits to
// the same store (another running client, or the teacher updating
// settings). There is no push channel; staleness is detected by re-reading
// the persisted record on two triggers: a fixed polling interval and a
// host focus-regain event forwarded via Focus.
//
// On any difference in APIKey or SystemInstruction the entire cached
// object is replaced (never field-merged) and OnChange fires. Close
// deregisters both triggers; a closed controller ignores further Focus
// calls.
type ConfigSync struct {
	registry *ClassroomRegistry
	code     string
	interval time.Duration
	onChange func(Classroom)

	mu     sync.Mutex
	cached Classroom
	state  SyncState

	ctx     context.Context
	cancel  context.CancelFunc
	focusCh chan struct{}
	closed  sync.Once
	started bool
	done    chan struct{}
}

func NewConfigSync(registry *ClassroomRegistry, code string, interval time.Duration, onChange func(Classroom)) *ConfigSync {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConfigSync{
		registry: registry,
		code:     code,
		interval: interval,
		onChange: onChange,
		state:    StateUnsynced,
		ctx:      ctx,
		cancel:   cancel,
		focusCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start performs the first load (UNSYNCED -> SYNCED) and launches the
// revalidation loop.
func (c *ConfigSync) Start() error {
	room, err := c.registry.FindByCode(c.code)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrConfigFault
	}
	c.mu.Lock()
	c.cached = *room
	c.state = StateSynced
	c.started = true
	c.mu.Unlock()

	go c.loop()
	return nil
}

func (c *ConfigSync) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Revalidate()
		case <-c.focusCh:
			c.Revalidate()
		}
	}
}

// Focus signals that the host regained foreground focus. Non-blocking; a
// revalidation already pending absorbs the trigger.
func (c *ConfigSync) Focus() {
	select {
	case <-c.ctx.Done():
	case c.focusCh <- struct{}{}:
	default:
	}
}

// Revalidate re-reads the persisted classroom and swaps the cache if the
// credential or instruction changed. Store errors leave the cache as-is;
// the next trigger retries.
func (c *ConfigSync) Revalidate() {
	room, err := c.registry.FindByCode(c.code)
	if err != nil || room == nil {
		return
	}
	c.mu.Lock()
	stale := room.APIKey != c.cached.APIKey || room.SystemInstruction != c.cached.SystemInstruction
	if stale {
		c.cached = *room
	}
	onChange := c.onChange
	fresh := c.cached
	c.mu.Unlock()

	if stale && onChange != nil {
		onChange(fresh)
	}
}

// Current returns a copy of the cached classroom.
func (c *ConfigSync) Current() Classroom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

func (c *ConfigSync) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close deregisters both triggers and waits for the loop to exit. Safe to
// call more than once.
func (c *ConfigSync) Close() {
	c.closed.Do(func() {
		c.cancel()
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if !started {
			return
		}
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
	})
}
