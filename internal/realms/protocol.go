package realms

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frame opcodes on the coordinator <-> realm link.
const (
	opHello    = 0x01 // realm -> coordinator, announces the realm id
	opRequest  = 0x07 // coordinator -> realm, correlated request
	opResponse = 0x08 // realm -> coordinator, correlated response
)

// maxFrameSize bounds a single frame so a broken peer can't make the
// reader allocate unbounded memory.
const maxFrameSize = 1 << 20

// frame is one length-prefixed message: opcode, correlation id, JSON body.
type frame struct {
	op      byte
	corrID  uint32
	payload []byte
}

func writeFrame(w io.Writer, f frame) error {
	buf := make([]byte, 4+1+4+len(f.payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+4+len(f.payload)))
	buf[4] = f.op
	binary.BigEndian.PutUint32(buf[5:9], f.corrID)
	copy(buf[9:], f.payload)

	_, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

func readFrame(r io.Reader) (frame, error) {
	var head [4]byte

	_, err := io.ReadFull(r, head[:])
	if err != nil {
		return frame{}, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(head[:])
	if length < 5 || length > maxFrameSize {
		return frame{}, fmt.Errorf("illegal frame length %d", length)
	}

	body := make([]byte, length)

	_, err = io.ReadFull(r, body)
	if err != nil {
		return frame{}, fmt.Errorf("read frame body: %w", err)
	}

	return frame{
		op:      body[0],
		corrID:  binary.BigEndian.Uint32(body[1:5]),
		payload: body[5:],
	}, nil
}

// Response is the canonical result shape on both the realm link and the
// payment-service channel.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Fail builds a failed Response with a formatted message.
func Fail(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}

// OKData builds a successful Response carrying v as its data payload.
// Marshalling v must not fail; it is always one of our own types.
func OKData(v any) Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return Fail("encode response data: %v", err)
	}

	return Response{OK: true, Data: raw}
}

// wireRequest is the body of an opRequest frame.
type wireRequest struct {
	Subject string   `json:"subject"`
	Info    []string `json:"info"`
}

// helloBody is the body of an opHello frame.
type helloBody struct {
	RealmID int `json:"realmId"`
}
