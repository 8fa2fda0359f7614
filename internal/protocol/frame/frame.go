package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrConnectionClosed = errors.New("frame: connection closed")
	ErrNegativeLength   = errors.New("frame: negative length prefix")
	ErrNameTooLarge     = errors.New("frame: name too large")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrNameNotASCII     = errors.New("frame: name is not ASCII")
)

// Frame is one complete wire message: a named, opaque payload.
type Frame struct {
	Name    string
	Payload []byte
}

// Keepalive is the empty frame used as a link heartbeat.
var Keepalive = Frame{}

func (f Frame) IsKeepalive() bool {
	return len(f.Name) == 0 && len(f.Payload) == 0
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxNameBytes    int32
	MaxPayloadBytes int32
}

func DefaultLimits() Limits {
	return Limits{
		MaxNameBytes:    1024,
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

// EncodedLen reports the exact on-wire size of a frame.
func EncodedLen(f Frame) int {
	return 8 + len(f.Name) + len(f.Payload)
}

// Validate checks limits and name encoding without building the wire
// form. Send paths use it so rejection costs no payload copy.
func Validate(f Frame, limits Limits) error {
	if int32(len(f.Name)) > limits.MaxNameBytes {
		return ErrNameTooLarge
	}
	if int32(len(f.Payload)) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	for i := 0; i < len(f.Name); i++ {
		if f.Name[i] >= 0x80 {
			return ErrNameNotASCII
		}
	}
	return nil
}

// Encode appends the wire form of f to dst and returns the extended slice.
func Encode(dst []byte, f Frame, limits Limits) ([]byte, error) {
	if err := Validate(f, limits); err != nil {
		return dst, err
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.Name)))
	dst = append(dst, f.Name...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.Payload)))
	dst = append(dst, f.Payload...)
	return dst, nil
}

// Write encodes f and writes it to w in one call.
func Write(w io.Writer, f Frame, limits Limits) error {
	buf, err := Encode(make([]byte, 0, EncodedLen(f)), f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decoder reads frames from a stream. The name scratch buffer is reused
// across frames and only ever grows, so steady-state decoding does not
// allocate for the name field. Payload bytes are freshly allocated since
// they are handed off to application code.
type Decoder struct {
	r      io.Reader
	limits Limits
	head   [4]byte
	name   []byte
}

func NewDecoder(r io.Reader, limits Limits) *Decoder {
	return &Decoder{r: r, limits: limits}
}

// Next blocks until a full frame is available or the stream closes.
// A stream that closes mid-frame reports ErrConnectionClosed.
func (d *Decoder) Next() (Frame, error) {
	nameLen, err := d.readLength(false)
	if err != nil {
		return Frame{}, err
	}
	if nameLen > d.limits.MaxNameBytes {
		return Frame{}, ErrNameTooLarge
	}
	if cap(d.name) < int(nameLen) {
		d.name = make([]byte, nameLen)
	}
	d.name = d.name[:nameLen]
	if nameLen > 0 {
		if _, err := io.ReadFull(d.r, d.name); err != nil {
			return Frame{}, closedOr(err)
		}
	}
	name := string(d.name)

	payloadLen, err := d.readLength(true)
	if err != nil {
		return Frame{}, err
	}
	if payloadLen > d.limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(d.r, payload); err != nil {
			return Frame{}, closedOr(err)
		}
	}
	return Frame{Name: name, Payload: payload}, nil
}

func (d *Decoder) readLength(midFrame bool) (int32, error) {
	if _, err := io.ReadFull(d.r, d.head[:]); err != nil {
		if !midFrame && errors.Is(err, io.EOF) {
			return 0, ErrConnectionClosed
		}
		return 0, closedOr(err)
	}
	n := int32(binary.LittleEndian.Uint32(d.head[:]))
	if n < 0 {
		return 0, ErrNegativeLength
	}
	return n, nil
}

func closedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrConnectionClosed
	}
	return err
}
