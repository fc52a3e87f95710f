package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{RemoteOffset: 0, GroupID: 1, CollID: 0, StepIdx: 1},
		{RemoteOffset: 1 << 20, GroupID: 0xffff, CollID: 0xff, StepIdx: 0xff},
		{RemoteOffset: 42, GroupID: 7, CollID: 7, StepIdx: 1},
	}
	buf := make([]byte, HeaderSize)
	for _, h := range cases {
		Encode(buf, h)
		got := Decode(buf)
		if got != h {
			t.Fatalf("round trip mismatch: put %+v got %+v", h, got)
		}
	}
}

func TestLocalIDPacking(t *testing.T) {
	h := Header{CollID: 7, StepIdx: 1}
	if got, want := h.LocalID(), PackLocalID(1, 7); got != want {
		t.Fatalf("LocalID() = %#x, want %#x", got, want)
	}
	// step_idx 0 is reserved (fixes the source's free-slot overload, spec §9)
	if PackLocalID(0, 9)>>8 != 0 {
		t.Fatal("expected zero step index to pack into the high byte as zero")
	}
}

func TestLengthInfoPacking(t *testing.T) {
	length, mode := uint32(123456), LengthInfoVarDtype
	packed := PackLength(length, mode)
	gotLen, gotMode := UnpackLength(packed)
	if gotLen != length || gotMode != mode {
		t.Fatalf("UnpackLength() = (%d, %d), want (%d, %d)", gotLen, gotMode, length, mode)
	}
}
