package switcher

import (
	"encoding/binary"
)

// HelloDatagram is the fixed 20-byte connect datagram clients send to open a
// session. It is compared byte-for-byte; its first word also decodes as a
// new-session packet of length 20, so either path establishes a session.
var HelloDatagram = []byte{
	0x10, 0x14, 0x53, 0xAB,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x3A, 0x00, 0x00,
	0x01, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// Packet is one control-protocol datagram.
// All multi-byte fields are big-endian on the wire.
type Packet struct {
	// Flags is the 5-bit control flag field.
	Flags uint8

	// SessionID identifies the session this packet belongs to.
	SessionID uint16

	// AckID is the packet id being acknowledged.
	// Valid only when FlagAckReply is set.
	AckID uint16

	// PacketID is the 15-bit sequence number assigned in send order.
	PacketID uint16

	// Payload is the concatenated command stream, possibly empty.
	Payload []byte
}

// Size returns the encoded packet size in bytes.
func (p *Packet) Size() int {
	return HeaderSize + len(p.Payload)
}

// Encode serializes the packet.
func (p *Packet) Encode() ([]byte, error) {
	length := p.Size()
	if length > int(lengthMask) {
		return nil, ErrPacketTooLong
	}

	buf := make([]byte, length)
	binary.BigEndian.PutUint16(buf[0:], uint16(p.Flags&flagMask)<<flagShift|uint16(length)&lengthMask)
	binary.BigEndian.PutUint16(buf[2:], p.SessionID)
	binary.BigEndian.PutUint16(buf[4:], p.AckID)
	// bytes 6-9 reserved
	binary.BigEndian.PutUint16(buf[10:], p.PacketID&MaxPacketID)
	copy(buf[HeaderSize:], p.Payload)

	return buf, nil
}

// DecodePacket deserializes one datagram. The declared length must match the
// actual datagram length exactly; callers drop mismatching datagrams
// silently.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, ErrPacketTooShort
	}

	word := binary.BigEndian.Uint16(data[0:])
	if int(word&lengthMask) != len(data) {
		return nil, ErrLengthMismatch
	}

	p := &Packet{
		Flags:     uint8(word>>flagShift) & flagMask,
		SessionID: binary.BigEndian.Uint16(data[2:]),
		AckID:     binary.BigEndian.Uint16(data[4:]),
		PacketID:  binary.BigEndian.Uint16(data[10:]) & MaxPacketID,
	}

	if len(data) > HeaderSize {
		p.Payload = make([]byte, len(data)-HeaderSize)
		copy(p.Payload, data[HeaderSize:])
	}

	return p, nil
}

// Command is one named, length-framed instruction inside a packet payload.
type Command struct {
	// Name is the 4-character command name.
	Name string

	// Payload is the command body.
	Payload []byte
}

// AppendCommand appends the encoded form of one command to buf.
func AppendCommand(buf []byte, name string, payload []byte) []byte {
	length := CommandHeaderSize + len(payload)
	hdr := make([]byte, CommandHeaderSize)
	binary.BigEndian.PutUint16(hdr[0:], uint16(length))
	// bytes 2-3 reserved
	copy(hdr[4:], name[:CommandNameSize])
	buf = append(buf, hdr...)
	return append(buf, payload...)
}

// DecodeCommands splits a packet payload into commands. Decoding stops
// without error at the first malformed entry (declared length below the
// header size, or overrunning the remaining bytes); commands decoded before
// that point are returned and still dispatched.
func DecodeCommands(data []byte) []Command {
	var cmds []Command

	for len(data) >= CommandHeaderSize {
		length := int(binary.BigEndian.Uint16(data[0:]))
		if length < CommandHeaderSize || length > len(data) {
			break
		}

		cmd := Command{Name: string(data[4 : 4+CommandNameSize])}
		if length > CommandHeaderSize {
			cmd.Payload = make([]byte, length-CommandHeaderSize)
			copy(cmd.Payload, data[CommandHeaderSize:length])
		}

		cmds = append(cmds, cmd)
		data = data[length:]
	}

	return cmds
}
