package device

import (
	"testing"
	"time"
)

type fakeFrame struct {
	ts  time.Time
	src string
	seq uint64
}

func (f fakeFrame) Timestamp() time.Time { return f.ts }
func (f fakeFrame) Source() string       { return f.src }
func (f fakeFrame) Sequence() uint64     { return f.seq }

func TestMailboxGetConsumesAndEmpties(t *testing.T) {
	var mb Mailbox
	if _, _, ok := mb.Get(); ok {
		t.Fatalf("Get on empty mailbox returned ok=true")
	}
	mb.Put(fakeFrame{src: "depth0", seq: 1})
	f, err, ok := mb.Get()
	if !ok || err != nil || f.Source() != "depth0" {
		t.Fatalf("Get = %v, %v, %v, want depth0 frame", f, err, ok)
	}
	if _, _, ok := mb.Get(); ok {
		t.Fatalf("second Get should find the mailbox empty")
	}
}

func TestMailboxPutIsNewestWins(t *testing.T) {
	var mb Mailbox
	mb.Put(fakeFrame{src: "depth0", seq: 1})
	mb.Put(fakeFrame{src: "depth0", seq: 2})
	f, _, ok := mb.Get()
	if !ok || f.Sequence() != 2 {
		t.Fatalf("Get = seq %d, want newest (2)", f.Sequence())
	}
}

func TestMailboxPeekDoesNotConsume(t *testing.T) {
	var mb Mailbox
	mb.Put(fakeFrame{src: "color0", seq: 5})
	if f, _, ok := mb.Peek(); !ok || f.Sequence() != 5 {
		t.Fatalf("Peek = %v, %v, want seq 5", f, ok)
	}
	if f, _, ok := mb.Peek(); !ok || f.Sequence() != 5 {
		t.Fatalf("second Peek = %v, %v, want the frame still present", f, ok)
	}
	if _, _, ok := mb.Get(); !ok {
		t.Fatalf("Get after Peek should still find the frame")
	}
}

func TestMailboxPutErrorSurfacesOnGet(t *testing.T) {
	var mb Mailbox
	mb.PutError(ErrDeviceTimeout)
	f, err, ok := mb.Get()
	if !ok || f != nil || err != ErrDeviceTimeout {
		t.Fatalf("Get = %v, %v, %v, want (nil, ErrDeviceTimeout, true)", f, err, ok)
	}
}

func TestMultiErrorFormatsAllErrors(t *testing.T) {
	me := MultiError{ErrDeviceUnavailable, ErrDeviceProtocol}
	if me.Error() == "" {
		t.Fatalf("MultiError.Error() returned empty string")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{KindDepth: "depth", KindColor: "color", Kind(99): "unknown"}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
