package ftp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/groundlink/limits"
)

var (
	// ErrShortPayload indicates a payload smaller than the packed header.
	ErrShortPayload = errors.New("ftp payload shorter than header")

	// ErrInvalidSize indicates a size field larger than the data area.
	ErrInvalidSize = errors.New("ftp payload size exceeds data area")
)

// Packet is the packed FTP payload carried in FILE_TRANSFER_PROTOCOL.
//
// Layout, little-endian:
//
//	0  seq_number     u16
//	2  session        u8
//	3  opcode         u8
//	4  size           u8
//	5  req_opcode     u8
//	6  burst_complete u8
//	7  padding        u8
//	8  offset         u32
//	12 data           [239]u8
type Packet struct {
	Seq           uint16
	Session       uint8
	Opcode        Opcode
	Size          uint8
	ReqOpcode     Opcode
	BurstComplete uint8
	Padding       uint8
	Offset        uint32
	Data          [limits.MaxFTPData]byte
}

// Encode packs p into a wire payload.
func (p *Packet) Encode() [limits.MaxFTPPayload]byte {
	var out [limits.MaxFTPPayload]byte
	binary.LittleEndian.PutUint16(out[0:2], p.Seq)
	out[2] = p.Session
	out[3] = uint8(p.Opcode)
	out[4] = p.Size
	out[5] = uint8(p.ReqOpcode)
	out[6] = p.BurstComplete
	out[7] = p.Padding
	binary.LittleEndian.PutUint32(out[8:12], p.Offset)
	copy(out[limits.FTPHeaderSize:], p.Data[:])
	return out
}

// DecodePacket unpacks a wire payload. The size field is not checked; use
// Validate before trusting Payload.
func DecodePacket(b []byte) (*Packet, error) {
	if len(b) < limits.FTPHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(b))
	}
	p := &Packet{
		Seq:           binary.LittleEndian.Uint16(b[0:2]),
		Session:       b[2],
		Opcode:        Opcode(b[3]),
		Size:          b[4],
		ReqOpcode:     Opcode(b[5]),
		BurstComplete: b[6],
		Padding:       b[7],
		Offset:        binary.LittleEndian.Uint32(b[8:12]),
	}
	copy(p.Data[:], b[limits.FTPHeaderSize:])
	return p, nil
}

// Validate checks the size field against the data area.
func (p *Packet) Validate() error {
	if int(p.Size) > limits.MaxFTPData {
		return fmt.Errorf("%w: %d", ErrInvalidSize, p.Size)
	}
	return nil
}

// Payload returns the used part of the data area.
func (p *Packet) Payload() []byte {
	n := int(p.Size)
	if n > len(p.Data) {
		n = len(p.Data)
	}
	return p.Data[:n]
}

// SetPayload copies b into the data area and sets Size.
func (p *Packet) SetPayload(b []byte) error {
	if err := limits.ValidateFTPData(b); err != nil {
		return err
	}
	p.Data = [limits.MaxFTPData]byte{}
	copy(p.Data[:], b)
	p.Size = uint8(len(b))
	return nil
}

// SetPath stores a NUL terminated path.
func (p *Packet) SetPath(path string) error {
	if err := limits.ValidatePath(path); err != nil {
		return err
	}
	return p.SetPayload(append([]byte(path), 0))
}

// SetPathPair stores two NUL terminated paths back to back.
func (p *Packet) SetPathPair(from, to string) error {
	if err := limits.ValidatePathPair(from, to); err != nil {
		return err
	}
	buf := make([]byte, 0, len(from)+len(to)+2)
	buf = append(buf, from...)
	buf = append(buf, 0)
	buf = append(buf, to...)
	buf = append(buf, 0)
	return p.SetPayload(buf)
}

// PathAt returns the n-th NUL separated string of the payload.
func (p *Packet) PathAt(n int) string {
	parts := bytes.Split(p.Payload(), []byte{0})
	if n >= len(parts) {
		return ""
	}
	return string(parts[n])
}

// Uint32 reads a little-endian u32 from the start of the data area.
func (p *Packet) Uint32() uint32 {
	return binary.LittleEndian.Uint32(p.Data[0:4])
}

// SetUint32 stores v little-endian as a four byte payload.
func (p *Packet) SetUint32(v uint32) {
	p.Data = [limits.MaxFTPData]byte{}
	binary.LittleEndian.PutUint32(p.Data[0:4], v)
	p.Size = 4
}

// nak fills p as a Nak carrying result and optional extra bytes.
func (p *Packet) nak(result ServerResult, extra ...byte) {
	p.Opcode = OpNak
	p.Data = [limits.MaxFTPData]byte{}
	p.Data[0] = uint8(result)
	copy(p.Data[1:], extra)
	p.Size = uint8(1 + len(extra))
}

// ack marks p as an Ack without touching its payload.
func (p *Packet) ack() {
	p.Opcode = OpAck
}
