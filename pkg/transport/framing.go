package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Framing constants.
const (
	// DefaultMaxBodyLength caps the body length a Framer accepts (1 MiB).
	DefaultMaxBodyLength = 1 << 20

	// DefaultPacketTimeout bounds reading the rest of a packet once its
	// first byte has arrived.
	DefaultPacketTimeout = 2 * time.Second

	// magicSize is the stream metadata magic read ahead during detection.
	magicSize = 4
)

// Framing errors.
var (
	// ErrBodyTooLarge indicates a header declaring more than the maximum body length.
	ErrBodyTooLarge = fmt.Errorf("%w: packet body too large", errdefs.ErrProtocol)

	// ErrTruncated indicates the stream ended inside a packet.
	ErrTruncated = fmt.Errorf("%w: packet truncated", errdefs.ErrTransport)

	// ErrNotMetadata indicates the first packet on a detecting framer was not
	// stream metadata.
	ErrNotMetadata = fmt.Errorf("%w: first packet is not stream metadata", errdefs.ErrProtocol)

	// ErrClosed indicates use of a closed connection.
	ErrClosed = fmt.Errorf("%w: connection closed", errdefs.ErrTransport)
)

// Framer reads and writes packets on a byte stream.
//
// A Framer created with NewDetectingFramer does not know the byte order up
// front: the first packet must be stream metadata, whose magic fixes the
// order for the rest of the stream.
type Framer struct {
	r       io.Reader
	w       io.Writer
	writeMu sync.Mutex

	endian   atomic.Uint32
	detected atomic.Bool

	maxBody uint32
	header  [packet.HeaderSize + magicSize]byte

	capture *captureLogger
}

// NewFramer creates a framer with a fixed byte order.
func NewFramer(rw io.ReadWriter, e wire.Endianness) *Framer {
	f := &Framer{r: rw, w: rw, maxBody: DefaultMaxBodyLength}
	f.endian.Store(uint32(e))
	f.detected.Store(true)
	return f
}

// NewDetectingFramer creates a framer that learns the byte order from the
// first packet's stream metadata magic.
func NewDetectingFramer(rw io.ReadWriter) *Framer {
	return &Framer{r: rw, w: rw, maxBody: DefaultMaxBodyLength}
}

// SetMaxBodyLength updates the maximum accepted body length.
func (f *Framer) SetMaxBodyLength(n uint32) {
	f.maxBody = n
}

// SetLogger configures protocol capture for this framer.
// Pass nil to disable capture.
func (f *Framer) SetLogger(logger log.Logger, connID string, role log.Role) {
	if logger == nil {
		f.capture = nil
		return
	}
	f.capture = &captureLogger{logger: logger, connID: connID, role: role}
}

// Endianness returns the byte order in use. Before detection it is BigEndian.
func (f *Framer) Endianness() wire.Endianness {
	return wire.Endianness(f.endian.Load())
}

// Detected reports whether the byte order is known.
func (f *Framer) Detected() bool {
	return f.detected.Load()
}

// ReadPacket reads exactly one header and its body.
func (f *Framer) ReadPacket() (packet.Packet, error) {
	if !f.detected.Load() {
		return f.readFirst()
	}

	hdr := f.header[:packet.HeaderSize]
	if err := readFull(f.r, hdr, true); err != nil {
		return packet.Packet{}, err
	}
	e := f.Endianness()
	header, length, _ := packet.DecodeHeader(hdr, e)
	if length > f.maxBody {
		return packet.Packet{}, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, length, f.maxBody)
	}

	var body []byte
	if length > 0 {
		body = make([]byte, length)
		if err := readFull(f.r, body, false); err != nil {
			return packet.Packet{}, err
		}
	}

	p := packet.FromHeader(header, body)
	f.capture.packet(log.DirectionIn, p, e)
	return p, nil
}

// readFirst reads the header plus magic, detects the byte order, then
// decodes the header with it.
func (f *Framer) readFirst() (packet.Packet, error) {
	buf := f.header[:]
	if err := readFull(f.r, buf, true); err != nil {
		return packet.Packet{}, err
	}

	e, err := wire.DetectEndianness(buf[packet.HeaderSize:])
	if err != nil {
		f.capture.error(log.LayerTransport, err, "endianness detection")
		return packet.Packet{}, err
	}
	header, length, _ := packet.DecodeHeader(buf, e)
	if header != packet.StreamMetadataHeader {
		return packet.Packet{}, fmt.Errorf("%w: got %s", ErrNotMetadata, packet.Name(header))
	}
	if length < magicSize {
		return packet.Packet{}, errdefs.Protocolf("stream metadata body of %d bytes", length)
	}
	if length > f.maxBody {
		return packet.Packet{}, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, length, f.maxBody)
	}

	body := make([]byte, length)
	copy(body, buf[packet.HeaderSize:])
	if err := readFull(f.r, body[magicSize:], false); err != nil {
		return packet.Packet{}, err
	}

	f.endian.Store(uint32(e))
	f.detected.Store(true)
	f.capture.state("UNDETECTED", e.String(), "stream metadata magic")

	p := packet.FromHeader(header, body)
	f.capture.packet(log.DirectionIn, p, e)
	return p, nil
}

// WritePacket writes an encoded packet in one call.
// Thread-safe: can be called from multiple goroutines.
func (f *Framer) WritePacket(b []byte) error {
	if len(b) < packet.HeaderSize {
		return errdefs.Protocolf("short packet: %d bytes", len(b))
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.w.Write(b); err != nil {
		return errdefs.Transportf("write packet: %v", err)
	}

	if f.capture != nil {
		if p, err := packet.Decode(b, f.Endianness()); err == nil {
			f.capture.packet(log.DirectionOut, p, f.Endianness())
		}
	}
	return nil
}

// Send encodes header and body in the framer's byte order and writes them.
func (f *Framer) Send(header uint32, body []byte) error {
	return f.WritePacket(packet.Encode(header, body, f.Endianness()))
}

// readFull reads len(b) bytes. EOF before the first byte of a packet is a
// clean close; EOF inside a packet is ErrTruncated.
func readFull(r io.Reader, b []byte, atBoundary bool) error {
	if _, err := io.ReadFull(r, b); err != nil {
		switch {
		case errors.Is(err, io.EOF) && atBoundary:
			return fmt.Errorf("%w: %w", ErrClosed, io.EOF)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return ErrTruncated
		case errors.Is(err, errdefs.ErrTransport), errors.Is(err, errdefs.ErrTimeout):
			return err
		default:
			return errdefs.Transportf("read: %v", err)
		}
	}
	return nil
}

func (f *Framer) setRemoteAddr(addr string) {
	if f.capture != nil {
		f.capture.remoteAddr = addr
	}
}
