package http2

// InvocationType tags how a Listener callback should be dispatched by the Session: inline on the
// goroutine that discovered the event (cheap, but must not block or call back into the Session)
// or handed to a caller-supplied worker so a slow handler never stalls the single-writer Flusher
// or the inbound frame-dispatch loop.
type InvocationType uint8

const (
	// Blocking callbacks run synchronously on the calling goroutine. Use only for handlers that
	// are known-fast (metrics increments, log lines) — anything that can block serializes every
	// subsequent frame behind it.
	Blocking InvocationType = iota
	// NonBlocking callbacks are submitted to Config.Executor (see config.go) and may run after
	// the triggering frame has already been fully processed.
	NonBlocking
)

// Task pairs a callback with its invocation type so the Session's event dispatcher can decide,
// per callback, whether to run it inline or hand it off.
type Task struct {
	Type InvocationType
	Run  func()
}

// BlockingTask builds a Task that runs fn inline.
func BlockingTask(fn func()) Task {
	return Task{Type: Blocking, Run: fn}
}

// NonBlockingTask builds a Task that runs fn on the configured executor.
func NonBlockingTask(fn func()) Task {
	return Task{Type: NonBlocking, Run: fn}
}

// dispatch runs t according to its Type, using exec for NonBlocking tasks. A nil exec falls back
// to running inline — better to block briefly than to silently drop a callback. Every run is
// wrapped with recoverCallback so a panicking application handler can never unwind into the
// engine or take down an unrelated stream's goroutine.
func dispatch(t Task, exec func(func()), log Logger) {
	if t.Run == nil {
		return
	}
	run := func() { recoverCallback(log, t.Run) }
	if t.Type == NonBlocking && exec != nil {
		exec(run)
		return
	}
	run()
}

// recoverCallback runs fn, logging and swallowing any panic instead of letting it propagate. Per
// the engine's error-handling contract, a misbehaving listener must never corrupt session state
// or crash the process.
func recoverCallback(log Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Printf("listener callback panicked: %v", r)
			}
		}
	}()
	fn()
}
