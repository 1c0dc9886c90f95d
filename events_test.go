package irc

import (
	"testing"
)

func TestCloseReason_String(t *testing.T) {
	cases := map[CloseReason]string{
		CloseUnknown:    "unknown",
		CloseByClient:   "by client",
		CloseByServer:   "by server",
		CloseByError:    "by error",
		CloseReason(42): "unknown",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Errorf("CloseReason(%d).String() = %q, want %q", int(reason), got, want)
		}
	}
}

func TestHandlers_Order(t *testing.T) {
	var h handlers[int]
	var calls []string

	h.add(1, func(int) { calls = append(calls, "first") })
	h.add(2, func(int) { calls = append(calls, "second") })
	h.add(3, func(int) { calls = append(calls, "third") })

	h.emit(0)

	if len(calls) != 3 || calls[0] != "first" || calls[1] != "second" || calls[2] != "third" {
		t.Errorf("calls = %v, want registration order", calls)
	}
}

func TestHandlers_Remove(t *testing.T) {
	var h handlers[int]
	var got []int

	h.add(1, func(v int) { got = append(got, v) })
	h.add(2, func(v int) { got = append(got, v*10) })

	if !h.remove(1) {
		t.Fatal("remove(1) = false")
	}
	if h.remove(1) {
		t.Error("second remove(1) = true")
	}

	h.emit(3)
	if len(got) != 1 || got[0] != 30 {
		t.Errorf("got = %v, want [30]", got)
	}
}

func TestHandlers_UnsubscribeDuringEmit(t *testing.T) {
	var h handlers[int]
	var calls int

	h.add(1, func(int) {
		calls++
		h.remove(2)
	})
	h.add(2, func(int) { calls++ })

	// The snapshot taken by emit still holds the second handler.
	h.emit(0)
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	h.emit(0)
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestConn_Unsubscribe(t *testing.T) {
	conn, err := NewConn(LoggerOption(DiscardLogger))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	opened := conn.OnOpened(func(Opened) {})
	secured := conn.OnSecured(func(Secured) {})
	closed := conn.OnClosed(func(Closed) {})
	messages := conn.OnMessage(func(MessageReceived) {})

	if opened == secured || secured == closed || closed == messages {
		t.Error("subscriptions share an identifier")
	}

	for _, s := range []Subscription{opened, secured, closed, messages} {
		if !conn.Unsubscribe(s) {
			t.Errorf("Unsubscribe(%v) = false", s)
		}
		if conn.Unsubscribe(s) {
			t.Errorf("second Unsubscribe(%v) = true", s)
		}
	}

	if conn.Unsubscribe(Subscription{}) {
		t.Error("Unsubscribe of the zero Subscription = true")
	}
}
