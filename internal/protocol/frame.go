package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"unicode/utf8"
)

// Frame layout, used in both directions:
//
//	[4 bytes] payload length, ASCII decimal, zero padded ("0042")
//	[N bytes] UTF-8 JSON payload
//
// The length field is fixed at four characters, so a payload can never be
// larger than 9999 bytes. Encoding anything bigger fails with
// ErrFrameTooLarge instead of producing a corrupt prefix.
const (
	HeaderSize     = 4
	MaxPayloadSize = 9999
)

var (
	ErrFrameTooLarge    = errors.New("protocol: payload exceeds 9999 bytes")
	ErrConnectionClosed = errors.New("protocol: connection closed")
	ErrMalformedLength  = errors.New("protocol: malformed length prefix")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
)

// Encode serializes v to compact JSON and prepends the length prefix.
// Nothing is returned when the payload does not fit in a frame.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("protocol: encode payload: %w", err)
	}
	payload := bytes.TrimSuffix(buf.Bytes(), []byte("\n")) // Encoder always appends a newline

	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, 0, HeaderSize+len(payload))
	frame = fmt.Appendf(frame, "%04d", len(payload))
	return append(frame, payload...), nil
}

// WriteMessage encodes v and writes the whole frame with a single Write.
// On ErrFrameTooLarge nothing is written to w.
func WriteMessage(w io.Writer, v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its raw payload.
// io.ReadFull loops over short reads, so a payload split across any number
// of TCP segments is reassembled.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, readError("read length prefix", err)
	}

	n, err := parseLength(hdr)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, readError("read payload", err)
	}
	return payload, nil
}

// Decode reads one frame from r and unmarshals its payload into v.
func Decode(r io.Reader, v any) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return Unmarshal(payload, v)
}

// Unmarshal parses a frame payload. JSON numbers decoded into interface
// values are kept as json.Number so their literal text survives.
func Unmarshal(payload []byte, v any) error {
	if !utf8.Valid(payload) {
		return fmt.Errorf("%w: invalid UTF-8", ErrMalformedPayload)
	}
	if err := unmarshalJSON(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// IsFramingError reports whether err breaks the stream framing, after which
// the connection can no longer be trusted to be aligned on a frame boundary.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrMalformedLength) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrConnectionClosed)
}

func parseLength(hdr [HeaderSize]byte) (int, error) {
	n := 0
	for _, b := range hdr {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformedLength, hdr[:])
		}
		n = n*10 + int(b-'0')
	}
	return n, nil
}

func unmarshalJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// exactly one JSON value per frame
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %s: %w", ErrConnectionClosed, op, err)
	}
	return fmt.Errorf("protocol: %s: %w", op, err)
}
