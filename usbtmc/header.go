package usbtmc

import "encoding/binary"

// BulkOutHeader is the 12-byte header of a Bulk-OUT transfer. It carries
// either a command message (MsgDevDepMsgOut) or a request for a response
// (MsgRequestDevDepMsgIn).
type BulkOutHeader struct {
	MsgID        uint8  // MsgDevDepMsgOut or MsgRequestDevDepMsgIn
	Tag          uint8  // bTag, 1-255
	TransferSize uint32 // Message bytes, or maximum response bytes
	Attributes   uint8  // bmTransferAttributes
	TermChar     uint8  // REQUEST_DEV_DEP_MSG_IN only
}

// ParseBulkOutHeader parses a Bulk-OUT header from raw bytes.
// Returns false if data is too short, the tag is zero, or the tag inverse
// does not match.
func ParseBulkOutHeader(data []byte, out *BulkOutHeader) bool {
	if len(data) < HeaderSize {
		return false
	}
	if data[1] == 0 || data[2] != ^data[1] {
		return false
	}

	out.MsgID = data[0]
	out.Tag = data[1]
	out.TransferSize = binary.LittleEndian.Uint32(data[4:8])
	out.Attributes = data[8]
	out.TermChar = 0
	if out.MsgID == MsgRequestDevDepMsgIn {
		out.TermChar = data[9]
	}
	return true
}

// EOM reports whether this is the last transfer of a command message.
func (h *BulkOutHeader) EOM() bool {
	return h.Attributes&AttrEOM != 0
}

// TermCharEnabled reports whether a response request asks the device to stop
// at TermChar.
func (h *BulkOutHeader) TermCharEnabled() bool {
	return h.MsgID == MsgRequestDevDepMsgIn && h.Attributes&AttrTermCharEnabled != 0
}

// MarshalTo writes the header to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (h *BulkOutHeader) MarshalTo(buf []byte) int {
	if len(buf) < HeaderSize {
		return 0
	}

	buf[0] = h.MsgID
	buf[1] = h.Tag
	buf[2] = ^h.Tag
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], h.TransferSize)
	buf[8] = h.Attributes
	buf[9] = 0
	if h.MsgID == MsgRequestDevDepMsgIn {
		buf[9] = h.TermChar
	}
	buf[10] = 0
	buf[11] = 0

	return HeaderSize
}

// BulkInHeader is the 12-byte header of a DEV_DEP_MSG_IN response.
type BulkInHeader struct {
	Tag          uint8  // bTag of the request being answered
	TransferSize uint32 // Response bytes following the header
	EOM          bool   // Last transfer of the response
}

// ParseBulkInHeader parses a DEV_DEP_MSG_IN header from raw bytes.
// Returns false if data is too short, the MsgID is wrong, or the tag inverse
// does not match.
func ParseBulkInHeader(data []byte, out *BulkInHeader) bool {
	if len(data) < HeaderSize {
		return false
	}
	if data[0] != MsgDevDepMsgIn || data[2] != ^data[1] {
		return false
	}

	out.Tag = data[1]
	out.TransferSize = binary.LittleEndian.Uint32(data[4:8])
	out.EOM = data[8]&AttrEOM != 0
	return true
}

// MarshalTo writes the header to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (h *BulkInHeader) MarshalTo(buf []byte) int {
	if len(buf) < HeaderSize {
		return 0
	}

	buf[0] = MsgDevDepMsgIn
	buf[1] = h.Tag
	buf[2] = ^h.Tag
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], h.TransferSize)
	buf[8] = 0
	if h.EOM {
		buf[8] = AttrEOM
	}
	buf[9] = 0
	buf[10] = 0
	buf[11] = 0

	return HeaderSize
}

// Align4 rounds n up to a multiple of 4. Every USBTMC bulk transfer is
// padded to a 4-byte boundary.
func Align4(n int) int {
	return (n + 3) &^ 3
}
