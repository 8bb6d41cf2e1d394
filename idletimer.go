package http2

import (
	"time"

	"github.com/valyala/fastrand"
)

// defaultScheduler is the default Scheduler, backed by time.AfterFunc with a few percent of
// jitter mixed into every delay so a session handling thousands of idle connections doesn't have
// every timer fire in the same instant. The jitter source (fastrand) is the same one
// http2utils.AddPadding already pulls in for DATA/HEADERS padding, so this carries no new
// dependency — just a second use site for an existing one.
type defaultScheduler struct{}

// NewDefaultScheduler builds the default Scheduler.
func NewDefaultScheduler() Scheduler {
	return defaultScheduler{}
}

func (defaultScheduler) After(d time.Duration, fn func()) (cancel func()) {
	jittered := jitter(d)
	t := time.AfterFunc(jittered, fn)
	return func() { t.Stop() }
}

// jitter spreads d by up to +/-5%. A zero or negative d, or one too small for a 5% spread of
// at least 1ns, is returned unchanged.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := int64(d) / 20 // 5%
	if spread <= 0 {
		return d
	}
	offset := int64(fastrand.Uint32n(uint32(2*spread))) - spread
	return d + time.Duration(offset)
}

// --- Per-stream and per-session idle/ack timers -----------------------------------------------
//
// These implement spec §5 "Cancellation and timeouts": a stream idle timeout resets the stream
// with CANCEL; a session idle timeout escalates close()->abort depending on current close state;
// a SETTINGS or PING without a timely ack is a connection-level fault. All of it rides on the
// Scheduler collaborator (see Config.Scheduler), never a bare time.Timer, so a caller embedding
// this engine in something with its own timer wheel can swap the whole mechanism out.

// armStreamIdle starts stream's idle timer if StreamIdleTimeout is configured. Called once, right
// after the stream is inserted into the registry.
func (s *Session) armStreamIdle(stream *Stream) {
	s.resetStreamIdle(stream)
}

// resetStreamIdle cancels and reschedules stream's idle timer; called on every observed frame
// belonging to that stream (RFC 7540 §5 "notIdle" semantics).
func (s *Session) resetStreamIdle(stream *Stream) {
	if s.cfg.StreamIdleTimeout <= 0 {
		return
	}
	cancel := s.scheduler.After(s.cfg.StreamIdleTimeout, func() {
		s.onStreamIdleTimeout(stream)
	})
	stream.setIdleCancel(cancel)
}

// onStreamIdleTimeout resets stream with CANCEL, per spec §5: "on expiry, the stream is reset
// with CANCEL."
func (s *Session) onStreamIdleTimeout(stream *Stream) {
	if stream.IsClosed() {
		return
	}

	rst := &RstStream{}
	rst.SetCode(ErrCodeCancel)
	fh := AcquireFrameHeader()
	fh.SetStream(stream.ID())
	fh.SetBody(rst)
	s.flusher.Submit(fh)

	if s.streams.Del(stream.ID()) != nil {
		stream.cancelIdle()
		s.fc.onStreamDestroyed(stream)
		s.listener.streamClosed(stream, ErrCodeCancel, s.cfg.Executor, s.log)
	}
}

// resetSessionIdle cancels and reschedules the session-wide idle timer. Called once at Session
// construction and again on every inbound frame (HandleFrame), matching §5's "session-wide
// notIdle() resets on any frame delivery."
func (s *Session) resetSessionIdle() {
	if s.cfg.SessionIdleTimeout <= 0 {
		return
	}
	cancel := s.scheduler.After(s.cfg.SessionIdleTimeout, s.onSessionIdleTimeout)
	s.idleMu.Lock()
	prev := s.sessionIdleCancel
	s.sessionIdleCancel = cancel
	s.idleMu.Unlock()
	if prev != nil {
		prev()
	}
}

// onSessionIdleTimeout implements the §4.3 close-state table's two idle-timeout rows: from
// NOT_CLOSED it starts a graceful close, from either half-closed state it escalates straight to
// abort since a graceful GOAWAY round-trip has already failed to make progress.
func (s *Session) onSessionIdleTimeout() {
	switch s.close.load() {
	case sessionNotClosed:
		s.Close(ErrCodeNo, "session idle timeout")
	case sessionLocallyClosed, sessionRemotelyClosed:
		s.Abort(ErrSessionIdle)
	}
}

// armSettingsAck schedules a SETTINGS_TIMEOUT connection failure if the peer hasn't acked this
// side's SETTINGS within SettingsAckTimeout. Call after SendSettings; cancelSettingsAck cancels it
// once handleSettings observes the ack bit.
func (s *Session) armSettingsAck() {
	if s.cfg.SettingsAckTimeout <= 0 {
		return
	}
	cancel := s.scheduler.After(s.cfg.SettingsAckTimeout, func() {
		s.Close(ErrCodeSettingsTimeout, "settings ack timeout")
	})
	s.idleMu.Lock()
	prev := s.settingsAckCancel
	s.settingsAckCancel = cancel
	s.idleMu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *Session) cancelSettingsAck() {
	s.idleMu.Lock()
	cancel := s.settingsAckCancel
	s.settingsAckCancel = nil
	s.idleMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// armPingTimeout schedules an Abort if the peer hasn't acked an outstanding PING within
// PingTimeout — a connection that no longer answers PING is treated as dead, per spec §5.
func (s *Session) armPingTimeout() {
	if s.cfg.PingTimeout <= 0 {
		return
	}
	cancel := s.scheduler.After(s.cfg.PingTimeout, func() {
		s.Abort(ErrPingTimedOut)
	})
	s.idleMu.Lock()
	prev := s.pingCancel
	s.pingCancel = cancel
	s.idleMu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *Session) cancelPingTimeout() {
	s.idleMu.Lock()
	cancel := s.pingCancel
	s.pingCancel = nil
	s.idleMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// cancelIdleTimers stops every outstanding session-scoped timer; called on Close and Abort so a
// terminated session never wakes a goroutine to act on state that no longer exists.
func (s *Session) cancelIdleTimers() {
	s.idleMu.Lock()
	sessionCancel, settingsCancel, pingCancel := s.sessionIdleCancel, s.settingsAckCancel, s.pingCancel
	s.sessionIdleCancel, s.settingsAckCancel, s.pingCancel = nil, nil, nil
	s.idleMu.Unlock()

	for _, cancel := range []func(){sessionCancel, settingsCancel, pingCancel} {
		if cancel != nil {
			cancel()
		}
	}
}
