package switcher

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/studiokit/devicelab/pkg/devicemodel"
)

// Command names pushed by the switcher.
const (
	cmdVersion         = "_ver"
	cmdProduct         = "_pin"
	cmdTopology        = "_top"
	cmdInputProperties = "InPr"
	cmdProgramInput    = "PrgI"
	cmdPreviewInput    = "PrvI"
	cmdRecordStatus    = "RTMS"
)

// Command names accepted from clients.
const (
	cmdChangeProgram = "CPgI"
	cmdChangePreview = "CPvI"
	cmdCut           = "DCut"
	cmdAuto          = "DAut"
	cmdChangeLabel   = "CInL"
	cmdRecordAction  = "RcTM"
)

// Payload sizes.
const (
	productNameSize   = 44
	longLabelSize     = 20
	shortLabelSize    = 4
	inputRecordSize   = 2 + longLabelSize + shortLabelSize + 2 // id, long, short, reserved
	changeLabelSize   = 4 + longLabelSize + shortLabelSize     // mask, reserved, id, long, short
	busAssignmentSize = 4                                      // me, reserved, source
)

// Label patch mask bits for the change-label command.
const (
	labelMaskLong  uint8 = 0x01
	labelMaskShort uint8 = 0x02
)

// appendVersion appends the protocol version announcement.
func appendVersion(buf []byte, st devicemodel.SwitcherState) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint16(p[0:], st.ProtocolMajor)
	binary.BigEndian.PutUint16(p[2:], st.ProtocolMinor)
	return AppendCommand(buf, cmdVersion, p)
}

// appendProduct appends the zero-padded product identity.
func appendProduct(buf []byte, st devicemodel.SwitcherState) []byte {
	p := make([]byte, productNameSize)
	copy(p, st.Product)
	return AppendCommand(buf, cmdProduct, p)
}

// appendTopology appends the hardware topology record.
func appendTopology(buf []byte, st devicemodel.SwitcherState) []byte {
	p := make([]byte, 8)
	p[0] = uint8(len(st.MixEffects))
	p[1] = uint8(len(st.Inputs))
	return AppendCommand(buf, cmdTopology, p)
}

// appendInputProperties appends one input's label record.
func appendInputProperties(buf []byte, id uint16, label devicemodel.InputLabel) []byte {
	p := make([]byte, inputRecordSize)
	binary.BigEndian.PutUint16(p[0:], id)
	copy(p[2:2+longLabelSize], label.Long)
	copy(p[2+longLabelSize:2+longLabelSize+shortLabelSize], label.Short)
	return AppendCommand(buf, cmdInputProperties, p)
}

// appendBusAssignment appends a program or preview source announcement.
func appendBusAssignment(buf []byte, name string, me int, source uint16) []byte {
	p := make([]byte, busAssignmentSize)
	p[0] = uint8(me)
	binary.BigEndian.PutUint16(p[2:], source)
	return AppendCommand(buf, name, p)
}

// appendRecordStatus appends the record-to-media status record.
func appendRecordStatus(buf []byte, state devicemodel.RecordingState) []byte {
	p := make([]byte, 4)
	p[0] = uint8(state)
	return AppendCommand(buf, cmdRecordStatus, p)
}

// appendProgramPreview appends the program and preview announcements for one
// mix effect. Clients expect the pair together after every routing change.
func appendProgramPreview(buf []byte, me int, m devicemodel.MixEffectState) []byte {
	buf = appendBusAssignment(buf, cmdProgramInput, me, m.Program)
	return appendBusAssignment(buf, cmdPreviewInput, me, m.Preview)
}

// stateBurst builds the full initial-state payload sent once after the
// handshake: version, product, topology, every input label, current
// program/preview routing, recording status.
func stateBurst(st devicemodel.SwitcherState) []byte {
	var buf []byte
	buf = appendVersion(buf, st)
	buf = appendProduct(buf, st)
	buf = appendTopology(buf, st)

	ids := make([]int, 0, len(st.Inputs))
	for id := range st.Inputs {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		buf = appendInputProperties(buf, uint16(id), st.Inputs[uint16(id)])
	}

	for me, m := range st.MixEffects {
		buf = appendProgramPreview(buf, me, m)
	}

	return appendRecordStatus(buf, st.Recording)
}

// busChange is a decoded change-program or change-preview command.
type busChange struct {
	me     int
	source uint16
}

// parseBusChange decodes a CPgI/CPvI payload. ok is false for truncated
// payloads, which are skipped silently.
func parseBusChange(payload []byte) (busChange, bool) {
	if len(payload) < busAssignmentSize {
		return busChange{}, false
	}
	return busChange{
		me:     int(payload[0]),
		source: binary.BigEndian.Uint16(payload[2:]),
	}, true
}

// parseMixEffect decodes the mix-effect index carried by DCut/DAut.
func parseMixEffect(payload []byte) (int, bool) {
	if len(payload) < 1 {
		return 0, false
	}
	return int(payload[0]), true
}

// labelChange is a decoded change-label command.
type labelChange struct {
	id    uint16
	patch devicemodel.LabelPatch
}

// parseLabelChange decodes a CInL payload: mask byte, reserved byte, input
// id, fixed-width long and short names. Only fields whose mask bit is set
// enter the patch.
func parseLabelChange(payload []byte) (labelChange, bool) {
	if len(payload) < changeLabelSize {
		return labelChange{}, false
	}

	lc := labelChange{id: binary.BigEndian.Uint16(payload[2:4])}
	mask := payload[0]

	if mask&labelMaskLong != 0 {
		long := trimLabel(payload[4 : 4+longLabelSize])
		lc.patch.Long = &long
	}
	if mask&labelMaskShort != 0 {
		short := trimLabel(payload[4+longLabelSize : 4+longLabelSize+shortLabelSize])
		lc.patch.Short = &short
	}

	return lc, true
}

// parseRecordAction decodes a RcTM payload.
func parseRecordAction(payload []byte) (devicemodel.RecordingCommand, bool) {
	if len(payload) < 1 {
		return 0, false
	}
	if payload[0] != 0 {
		return devicemodel.RecordingStart, true
	}
	return devicemodel.RecordingStop, true
}

// trimLabel strips the zero padding from a fixed-width wire string.
func trimLabel(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
