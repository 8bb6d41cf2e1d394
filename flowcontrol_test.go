package http2

import (
	"testing"
)

func newTestStream(id uint32, window int64) *Stream {
	s := NewStream(id, window, window, nil)
	return s
}

func TestSimpleFlowControlOnDataSending(t *testing.T) {
	fc := NewSimpleFlowControl(100)
	s := newTestStream(1, 100)
	fc.(*simpleFlowControl).onStreamCreated(s)

	if n := fc.(*simpleFlowControl).onDataSending(s, 50); n != 50 {
		t.Fatalf("expected 50 bytes available, got %d", n)
	}

	fc.(*simpleFlowControl).onDataSent(s, 90)
	if n := fc.(*simpleFlowControl).onDataSending(s, 50); n != 10 {
		t.Fatalf("expected window to clamp to 10 remaining, got %d", n)
	}

	fc.(*simpleFlowControl).onDataSent(s, 10)
	if n := fc.(*simpleFlowControl).onDataSending(s, 1); n != 0 {
		t.Fatalf("expected exhausted window to report 0, got %d", n)
	}
}

func TestSimpleFlowControlOnDataReceivedExceedsStreamWindow(t *testing.T) {
	fc := NewSimpleFlowControl(100).(*simpleFlowControl)
	s := newTestStream(1, 100)
	fc.onStreamCreated(s)

	s.recvWindow = 10
	err := fc.onDataReceived(s, 20)
	if err == nil {
		t.Fatal("expected an error when a receive exceeds the stream's window")
	}
	if _, ok := err.(*StreamError); !ok {
		t.Fatalf("expected *StreamError, got %T", err)
	}
}

func TestSimpleFlowControlOnDataReceivedExceedsConnWindow(t *testing.T) {
	fc := NewSimpleFlowControl(100).(*simpleFlowControl)
	s := newTestStream(1, 1000)
	fc.onStreamCreated(s)
	s.recvWindow = 1000

	err := fc.onDataReceived(s, 200)
	if err == nil {
		t.Fatal("expected an error when a receive exceeds the connection window")
	}
	if _, ok := err.(*ConnectionError); !ok {
		t.Fatalf("expected *ConnectionError, got %T", err)
	}
}

func TestSimpleFlowControlOnDataReceivedNilStreamStillDebitsConnWindow(t *testing.T) {
	fc := NewSimpleFlowControl(100).(*simpleFlowControl)

	if err := fc.onDataReceived(nil, 60); err != nil {
		t.Fatalf("nil-stream receive must not itself error, got %v", err)
	}
	if fc.connRecvWindow != 40 {
		t.Fatalf("expected connection window debited to 40, got %d", fc.connRecvWindow)
	}

	// A second nil-stream receive still debits the connection window, here below zero, but
	// reports no error: with no stream present there is no stream for it to fail.
	if err := fc.onDataReceived(nil, 60); err != nil {
		t.Fatalf("nil-stream receive must not itself error, got %v", err)
	}
	if fc.connRecvWindow != -20 {
		t.Fatalf("expected connection window debited to -20, got %d", fc.connRecvWindow)
	}
}

func TestSimpleFlowControlOnDataConsumedCreditsBelowHalf(t *testing.T) {
	fc := NewSimpleFlowControl(100).(*simpleFlowControl)
	s := newTestStream(1, 100)
	fc.onStreamCreated(s)

	if err := fc.onDataReceived(s, 60); err != nil {
		t.Fatal(err)
	}

	connInc, streamInc := fc.onDataConsumed(s, 60)
	if connInc == 0 {
		t.Fatal("expected a connection WINDOW_UPDATE once recv window dropped below half")
	}
	if streamInc == 0 {
		t.Fatal("expected a stream WINDOW_UPDATE once recv window dropped below half")
	}
	if s.RecvWindow() != int64(fc.initialWindowSize) {
		t.Fatalf("expected stream recv window restored to initial size, got %d", s.RecvWindow())
	}
}

func TestSimpleFlowControlWindowUpdateOverflow(t *testing.T) {
	fc := NewSimpleFlowControl(100).(*simpleFlowControl)
	fc.connSendWindow = int64(MaxWindowSize) - 1

	err := fc.windowUpdate(nil, 100)
	if err == nil {
		t.Fatal("expected connection send window overflow to error")
	}
}

func TestSimpleFlowControlWindowUpdateZeroIncrement(t *testing.T) {
	fc := NewSimpleFlowControl(100).(*simpleFlowControl)
	s := newTestStream(1, 100)
	fc.onStreamCreated(s)

	if err := fc.windowUpdate(s, 0); err == nil {
		t.Fatal("expected a zero-increment stream WINDOW_UPDATE to error")
	}
	if err := fc.windowUpdate(nil, 0); err == nil {
		t.Fatal("expected a zero-increment connection WINDOW_UPDATE to error")
	}
}

func TestSimpleFlowControlUpdateInitialStreamWindow(t *testing.T) {
	fc := NewSimpleFlowControl(100).(*simpleFlowControl)
	streams := NewStreams()

	s1 := newTestStream(1, 100)
	s2 := newTestStream(3, 100)
	fc.onStreamCreated(s1)
	fc.onStreamCreated(s2)
	streams.Insert(s1)
	streams.Insert(s2)

	if err := fc.updateInitialStreamWindow(100, 150, streams); err != nil {
		t.Fatal(err)
	}
	if s1.SendWindow() != 150 || s2.SendWindow() != 150 {
		t.Fatalf("expected both streams' send windows to shift by +50, got %d and %d", s1.SendWindow(), s2.SendWindow())
	}
}
