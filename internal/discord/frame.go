package discord

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Opcodes of the local IPC protocol
const (
	opHandshake uint32 = 0
	opFrame     uint32 = 1
	opClose     uint32 = 2
	opPing      uint32 = 3
	opPong      uint32 = 4
)

// maxFrameSize bounds a single inbound payload
const maxFrameSize = 1 << 20

const headerSize = 8

// writeFrame encodes payload as JSON behind the 8 byte little-endian header
// (opcode, length) and writes it in a single call.
func writeFrame(w io.Writer, op uint32, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	buf := make([]byte, headerSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], op)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(data)))
	copy(buf[headerSize:], data)

	_, err = w.Write(buf)
	return err
}

// readFrame reads one frame and returns its opcode and raw JSON body
func readFrame(r io.Reader) (uint32, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}

	op := binary.LittleEndian.Uint32(hdr[0:4])
	length := binary.LittleEndian.Uint32(hdr[4:8])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return op, body, nil
}

type handshake struct {
	V        int    `json:"v"`
	ClientID string `json:"client_id"`
}

type command struct {
	Cmd   string `json:"cmd"`
	Args  any    `json:"args"`
	Nonce string `json:"nonce"`
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

// message is any inbound FRAME payload
type message struct {
	Cmd  string          `json:"cmd"`
	Evt  string          `json:"evt"`
	Data json.RawMessage `json:"data"`
}

type readyData struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
