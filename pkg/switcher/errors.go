package switcher

import "errors"

// Switcher protocol errors.
var (
	// Packet decoding errors
	ErrPacketTooShort   = errors.New("switcher: datagram shorter than header")
	ErrLengthMismatch   = errors.New("switcher: declared length does not match datagram")
	ErrPacketTooLong    = errors.New("switcher: packet exceeds length field range")

	// Adapter lifecycle errors
	ErrNoModel        = errors.New("switcher: no device model configured")
	ErrAlreadyStarted = errors.New("switcher: already started")
	ErrNotStarted     = errors.New("switcher: not started")
)

// Packet format constants.
const (
	// HeaderSize is the fixed packet header size in bytes.
	HeaderSize = 12

	// MaxPacketSize is the largest encodable packet. The length field is
	// 11 bits wide.
	MaxPacketSize = 0x07FF

	// MaxPacketID is the largest packet id. Packet ids are 15 bits; the
	// top bit of the field is reserved and always zero.
	MaxPacketID = 0x7FFF

	// MaxSessionID is the largest session id allocated during handshake.
	MaxSessionID = 0x7FFF

	// CommandHeaderSize is the per-command header: 2-byte length, 2
	// reserved bytes, 4-byte name.
	CommandHeaderSize = 8

	// CommandNameSize is the length of a command name.
	CommandNameSize = 4
)

// Control flag bits. They occupy the top 5 bits of the first 16-bit word;
// the low 11 bits carry the packet length.
const (
	// FlagAckRequest asks the peer to acknowledge this packet.
	FlagAckRequest uint8 = 0x01

	// FlagNewSession marks a handshake (session-establishing) packet.
	FlagNewSession uint8 = 0x02

	// FlagAckReply marks an acknowledgment; the ack-id field is valid.
	FlagAckReply uint8 = 0x10

	// flagMask is the width of the flag field.
	flagMask uint8 = 0x1F

	// lengthMask extracts the packet length from the first word.
	lengthMask uint16 = 0x07FF

	// flagShift positions the flags above the length bits.
	flagShift = 11
)
