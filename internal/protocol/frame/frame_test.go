package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		{Name: "chatter", Payload: []byte("hello")},
		{Name: "t", Payload: nil},
		{Name: "__system", Payload: []byte(`{"topic":"chatter"}`)},
		{Name: "empty_payload", Payload: []byte{}},
		{Name: "binary", Payload: []byte{0x00, 0xFF, 0x7F, 0x80, 0x01}},
	}
	var buf bytes.Buffer
	for _, in := range cases {
		if err := Write(&buf, in, DefaultLimits()); err != nil {
			t.Fatalf("write %q: %v", in.Name, err)
		}
	}
	d := NewDecoder(&buf, DefaultLimits())
	for _, in := range cases {
		out, err := d.Next()
		if err != nil {
			t.Fatalf("decode %q: %v", in.Name, err)
		}
		if out.Name != in.Name {
			t.Fatalf("name mismatch: got=%q want=%q", out.Name, in.Name)
		}
		if !bytes.Equal(out.Payload, in.Payload) {
			t.Fatalf("payload mismatch for %q", in.Name)
		}
	}
	if _, err := d.Next(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed at stream end, got %v", err)
	}
}

func TestValidateMatchesEncodeWithoutCopying(t *testing.T) {
	limits := Limits{MaxNameBytes: 8, MaxPayloadBytes: 16}
	cases := []struct {
		name string
		f    Frame
		want error
	}{
		{"ok", Frame{Name: "chatter", Payload: []byte("hello")}, nil},
		{"name too long", Frame{Name: "long_topic_name"}, ErrNameTooLarge},
		{"payload too long", Frame{Name: "t", Payload: make([]byte, 17)}, ErrPayloadTooLarge},
		{"non-ascii name", Frame{Name: "tøpic"}, ErrNameNotASCII},
	}
	for _, tc := range cases {
		if err := Validate(tc.f, limits); !errors.Is(err, tc.want) {
			t.Fatalf("%s: Validate = %v, want %v", tc.name, err, tc.want)
		}
		if _, err := Encode(nil, tc.f, limits); !errors.Is(err, tc.want) {
			t.Fatalf("%s: Encode disagrees with Validate: %v", tc.name, err)
		}
	}
}

func TestEncodedLenMatchesWire(t *testing.T) {
	f := Frame{Name: "odom", Payload: []byte("payload-bytes")}
	buf, err := Encode(nil, f, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != EncodedLen(f) {
		t.Fatalf("encoded length mismatch: got=%d want=%d", len(buf), EncodedLen(f))
	}
	if len(buf) != 8+len(f.Name)+len(f.Payload) {
		t.Fatalf("wire length contract broken: %d", len(buf))
	}
}

func TestKeepaliveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Keepalive, DefaultLimits()); err != nil {
		t.Fatalf("write keepalive: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("keepalive should be 8 bytes, got %d", buf.Len())
	}
	out, err := NewDecoder(&buf, DefaultLimits()).Next()
	if err != nil {
		t.Fatalf("decode keepalive: %v", err)
	}
	if !out.IsKeepalive() {
		t.Fatalf("expected keepalive, got %+v", out)
	}
}

func TestDecodeTruncatedStream(t *testing.T) {
	full, err := Encode(nil, Frame{Name: "chatter", Payload: []byte("hello")}, DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for cut := 1; cut < len(full); cut++ {
		d := NewDecoder(bytes.NewReader(full[:cut]), DefaultLimits())
		if _, err := d.Next(); !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("cut=%d expected ErrConnectionClosed, got %v", cut, err)
		}
	}
}

func TestDecodeNegativeLength(t *testing.T) {
	d := NewDecoder(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}), DefaultLimits())
	if _, err := d.Next(); !errors.Is(err, ErrNegativeLength) {
		t.Fatalf("expected ErrNegativeLength, got %v", err)
	}
}

func TestEncodeRejectsNonASCIIName(t *testing.T) {
	_, err := Encode(nil, Frame{Name: "tøpic"}, DefaultLimits())
	if !errors.Is(err, ErrNameNotASCII) {
		t.Fatalf("expected ErrNameNotASCII, got %v", err)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	limits := Limits{MaxNameBytes: 16, MaxPayloadBytes: 4}
	_, err := Encode(nil, Frame{Name: "t", Payload: []byte("12345")}, limits)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecoderScratchBufferGrowsMonotonically(t *testing.T) {
	var buf bytes.Buffer
	names := []string{"a", "much_longer_topic_name", "b", "mid_name", "c"}
	for _, n := range names {
		if err := Write(&buf, Frame{Name: n}, DefaultLimits()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	d := NewDecoder(&buf, DefaultLimits())
	maxCap := 0
	for _, n := range names {
		f, err := d.Next()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if f.Name != n {
			t.Fatalf("name mismatch: got=%q want=%q", f.Name, n)
		}
		if cap(d.name) < maxCap {
			t.Fatalf("scratch buffer shrank: cap=%d prev=%d", cap(d.name), maxCap)
		}
		if cap(d.name) > maxCap {
			maxCap = cap(d.name)
		}
	}
}
