package flow

import "time"

// Clock delivers countdown ticks to a state machine. Machines consume
// ticks instead of reading the wall clock, so tests can drive them
// without real delays.
type Clock interface {
	// Ticks returns the channel tick events arrive on.
	Ticks() <-chan time.Time
	// Stop releases the clock's resources.
	Stop()
}

// WallClock ticks once per second off a real time.Ticker.
type WallClock struct {
	ticker *time.Ticker
}

// NewWallClock constructs a one-second wall clock.
func NewWallClock() *WallClock {
	return &WallClock{ticker: time.NewTicker(time.Second)}
}

func (c *WallClock) Ticks() <-chan time.Time {
	return c.ticker.C
}

func (c *WallClock) Stop() {
	c.ticker.Stop()
}
