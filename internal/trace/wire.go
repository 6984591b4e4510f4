package trace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/sigurn/crc16"
)

// Wire format: sync, kind, length, payload, CRC-16/CCITT-FALSE (little
// endian) over kind, length and payload. The event payload is tick, thread
// and arg as little-endian 32-bit words.
const (
	Sync        byte = 0xA5
	headerSize       = 3
	payloadSize      = 12
	crcSize          = 2
	FrameSize        = headerSize + payloadSize + crcSize
)

var (
	ErrShortFrame = errors.New("trace: short frame")
	ErrChecksum   = errors.New("trace: checksum mismatch")
	ErrSync       = errors.New("trace: missing sync byte")
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// AppendFrame appends the wire encoding of ev to dst.
func AppendFrame(dst []byte, ev Event) []byte {
	start := len(dst)
	dst = append(dst, Sync, byte(ev.Kind), payloadSize)
	dst = binary.LittleEndian.AppendUint32(dst, ev.Tick)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(ev.Thread))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(ev.Arg))
	sum := crc16.Checksum(dst[start+1:], crcTable)
	return binary.LittleEndian.AppendUint16(dst, sum)
}

// ParseFrame decodes one complete frame.
func ParseFrame(b []byte) (Event, error) {
	if len(b) < headerSize {
		return Event{}, ErrShortFrame
	}
	if b[0] != Sync {
		return Event{}, ErrSync
	}
	n := int(b[2])
	if n != payloadSize || len(b) < headerSize+n+crcSize {
		return Event{}, ErrShortFrame
	}
	body := b[1 : headerSize+n]
	want := binary.LittleEndian.Uint16(b[headerSize+n:])
	if crc16.Checksum(body, crcTable) != want {
		return Event{}, ErrChecksum
	}
	p := b[headerSize:]
	return Event{
		Kind:   Kind(b[1]),
		Tick:   binary.LittleEndian.Uint32(p[0:]),
		Thread: int32(binary.LittleEndian.Uint32(p[4:])),
		Arg:    int32(binary.LittleEndian.Uint32(p[8:])),
	}, nil
}

// Encoder writes frames without allocating.
type Encoder struct {
	w   io.Writer
	buf [FrameSize]byte
}

func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

func (e *Encoder) Encode(ev Event) error {
	_, err := e.w.Write(AppendFrame(e.buf[:0], ev))
	return err
}

// Decoder reads frames from a byte stream, skipping noise and corrupt
// frames.
type Decoder struct {
	r       *bufio.Reader
	buf     [FrameSize]byte
	skipped int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Skipped reports how many bytes were discarded while resynchronising.
func (d *Decoder) Skipped() int { return d.skipped }

// Next returns the next valid event.
func (d *Decoder) Next() (Event, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return Event{}, err
		}
		if b != Sync {
			d.skipped++
			continue
		}

		peek, err := d.r.Peek(FrameSize - 1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		d.buf[0] = Sync
		copy(d.buf[1:], peek)
		ev, err := ParseFrame(d.buf[:])
		if err != nil {
			// Resume scanning just past this sync byte.
			d.skipped++
			continue
		}
		if _, err := d.r.Discard(FrameSize - 1); err != nil {
			return Event{}, err
		}
		return ev, nil
	}
}
