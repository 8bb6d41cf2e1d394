package http2

import (
	"sync"
	"time"
)

// Config holds the tunables for a Session: local SETTINGS defaults, timeouts, PRIORITY-frame
// rate limiting, and the pluggable collaborators (FlowControl strategy, HeaderCodec, Transport,
// Scheduler, BufferPool, Listener, Executor, Logger). A zero-value Config is invalid; always
// start from DefaultConfig.
//
// Grounded on MiraiMindz-watt's ConnectionConfig — same shape (buffer limits, rate limiting,
// timeouts, self-healing Validate), adapted to this repo's collaborator-interface design.
type Config struct {
	// Local SETTINGS values advertised to the peer on session start.
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32

	// MaxPriorityUpdatesPerSecond caps PRIORITY frames processed per second per session,
	// guarding against the RFC 7540 §5.3 priority-tree churn a hostile peer can otherwise induce
	// for free; priority fields carried on HEADERS are not counted. 0 disables the limiter.
	MaxPriorityUpdatesPerSecond int
	PriorityRateLimitWindow     time.Duration
	// EnablePriorityTree turns on cross-stream dependency-tree bookkeeping (cycle detection,
	// exclusive reparenting, effective-weight queries) beyond the per-stream dependency/weight
	// bookkeeping Stream already does unconditionally. Off by default: spec §4.1 only requires
	// "no state change beyond what the parser validates" for PRIORITY handling.
	EnablePriorityTree bool

	// StreamIdleTimeout closes a stream that sees no frame activity for this long. 0 disables it.
	StreamIdleTimeout time.Duration
	// SessionIdleTimeout closes the whole session if no frame of any kind arrives for this long.
	SessionIdleTimeout time.Duration
	// SettingsAckTimeout bounds how long the session waits for a peer's SETTINGS ack before
	// treating it as a SETTINGS_TIMEOUT connection error.
	SettingsAckTimeout time.Duration
	// PingTimeout bounds how long the session waits for a PING ack before treating the
	// connection as dead.
	PingTimeout time.Duration
	// GoAwayGracePeriod is defaulted by DefaultConfig and Validate but not read by Session:
	// streams still open after a GOAWAY are not force-closed on a timer.
	GoAwayGracePeriod time.Duration

	// FlowControl selects the windowing strategy; nil defaults to NewSimpleFlowControl.
	FlowControl FlowControl
	// HeaderCodec selects the HPACK implementation; nil defaults to the x/net/http2/hpack
	// adapter in hpackcodec.go.
	HeaderCodec HeaderCodec
	// BufferPool selects the payload buffer allocator; nil defaults to the bytebufferpool
	// adapter in bufferpool_default.go.
	BufferPool BufferPool
	// Scheduler selects the timer implementation; nil defaults to the fastrand-jittered
	// adapter in idletimer.go.
	Scheduler Scheduler
	// StreamFactory builds Stream values on stream creation; nil uses a plain NewStream.
	StreamFactory StreamFactory
	// HeaderPolicy observes reassembled header blocks by HTTP role, alongside Listener.OnHeaders;
	// nil disables the role-specific callbacks (see fasthttpbridge for the default adapter).
	HeaderPolicy HeaderPolicy
	// Listener receives lifecycle callbacks; nil means no callbacks fire.
	Listener *Listener
	// Executor runs NonBlocking tasks; nil runs them inline (see callback.go's dispatch).
	Executor func(func())
	// Logger receives diagnostic lines; nil defaults to defaultLogger().
	Logger Logger
}

// DefaultConfig returns a Config with RFC 7540 §6.5.2 default SETTINGS and conservative
// timeouts, mirroring MiraiMindz-watt's DefaultConnectionConfig defaults where the two configs
// overlap (priority rate limit, idle timeouts).
func DefaultConfig() *Config {
	return &Config{
		HeaderTableSize:             DefaultHeaderTableSize,
		EnablePush:                  DefaultEnablePush,
		MaxConcurrentStreams:        DefaultMaxConcurrentStreams,
		InitialWindowSize:           DefaultInitialWindowSize,
		MaxFrameSize:                DefaultMaxFrameSize,
		MaxHeaderListSize:           0,
		MaxPriorityUpdatesPerSecond: 100,
		PriorityRateLimitWindow:     time.Second,
		StreamIdleTimeout:           5 * time.Minute,
		SessionIdleTimeout:          10 * time.Minute,
		SettingsAckTimeout:          10 * time.Second,
		PingTimeout:                 30 * time.Second,
		GoAwayGracePeriod:           5 * time.Second,
	}
}

// Validate fills in safe defaults for zero-valued fields that must never be zero, rather than
// failing outright — the same self-healing posture as MiraiMindz-watt's Validate.
func (c *Config) Validate() error {
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = DefaultMaxConcurrentStreams
	}
	if c.InitialWindowSize == 0 {
		c.InitialWindowSize = DefaultInitialWindowSize
	}
	if c.InitialWindowSize > MaxWindowSize {
		return NewConnError(ErrCodeFlowControl, "initial window size exceeds 2^31-1")
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.MaxFrameSize < MinAllowedFrameSize || c.MaxFrameSize > MaxAllowedFrameSize {
		return NewConnError(ErrCodeProtocol, "max frame size out of [16384, 16777215]")
	}
	if c.MaxPriorityUpdatesPerSecond < 0 {
		c.MaxPriorityUpdatesPerSecond = 0
	}
	if c.PriorityRateLimitWindow <= 0 {
		c.PriorityRateLimitWindow = time.Second
	}
	if c.StreamIdleTimeout < 0 {
		c.StreamIdleTimeout = 5 * time.Minute
	}
	if c.SessionIdleTimeout < 0 {
		c.SessionIdleTimeout = 10 * time.Minute
	}
	if c.SettingsAckTimeout <= 0 {
		c.SettingsAckTimeout = 10 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 30 * time.Second
	}
	if c.GoAwayGracePeriod <= 0 {
		c.GoAwayGracePeriod = 5 * time.Second
	}
	if c.FlowControl == nil {
		c.FlowControl = NewSimpleFlowControl(c.InitialWindowSize)
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	return nil
}

// priorityLimiter is a fixed-window rate limiter guarding PRIORITY-frame processing, grounded on
// MiraiMindz-watt's rateLimiter.
type priorityLimiter struct {
	mu           sync.Mutex
	count        int
	window       time.Duration
	lastReset    time.Time
	maxPerWindow int
}

func newPriorityLimiter(maxPerWindow int, window time.Duration) *priorityLimiter {
	return &priorityLimiter{
		maxPerWindow: maxPerWindow,
		window:       window,
		lastReset:    time.Now(),
	}
}

// allow reports whether one more PRIORITY-triggering event may be processed this window. A
// limiter with maxPerWindow <= 0 always allows (the feature is off).
func (rl *priorityLimiter) allow() bool {
	if rl.maxPerWindow <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastReset) >= rl.window {
		rl.count = 0
		rl.lastReset = now
	}
	if rl.count >= rl.maxPerWindow {
		return false
	}
	rl.count++
	return true
}
