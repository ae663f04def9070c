package tsmf

// ARIB TSMF multiplex-frame header: carried as a normal 188-byte TS packet
// on PID 0x002F, describing stream assignments for the following 52 slots.
const (
	tsmfFramePID  = 0x002F
	frameSyncMask = 0x1FFF
	frameSyncF    = 0x1A86
	frameSyncI    = (^uint16(frameSyncF)) & frameSyncMask

	numStreams = 15
	numSlots   = 52
)

// streamInfo describes one of the 15 relative streams a TSMF multiplex frame
// can carry.
type streamInfo struct {
	streamStatus      byte // 1 bit: 0 = unassigned/inactive, 1 = active
	streamID          uint16
	originalNetworkID uint16
	receiveStatus     byte // 2 bits
	streamType        byte // 1 bit: 0 = TLV carriage, 1 = TS pass-through
}

// frameDescriptor is the fully decoded TSMF multiplex-frame header. It is
// valid only while the owning driver's slotCounter is >= 0, and is
// overwritten wholesale by each new header — never exposed to callers.
type frameDescriptor struct {
	continuityCounter  byte
	versionNumber      byte
	frameType          byte // 1 or 2
	emergencyIndicator byte
	groupID            byte
	numberOfCarriers   byte
	carrierSequence    byte
	numberOfFrames     byte
	framePosition      byte

	streamInfo [numStreams]streamInfo

	// relativeStreamNumber maps slot index [0,52) to a relative stream
	// number in [0,15]; 0 means the slot is unassigned.
	relativeStreamNumber [numSlots]byte
}

// decodeTSMFHeader validates buf as a candidate TSMF multiplex-frame header
// packet and, on success, fully populates desc. buf must be at least one TS
// packet (188 bytes); only the first 188 bytes are consulted.
//
// Validation order and bit layout follow the ARIB frame header exactly:
// sync byte, frame PID, fixed adaptation bits, frame sync pattern, CRC-32
// residue, slot-assignment mode, and frame type — any failure is reported as
// "not a header," never as an error, matching the spec's silent-failure
// policy for header candidates.
func decodeTSMFHeader(buf []byte, desc *frameDescriptor) bool {
	if len(buf) < 188 {
		return false
	}
	if buf[0] != syncByte {
		return false
	}
	pid := (uint16(buf[1]) << 8) | uint16(buf[2])
	if pid != tsmfFramePID {
		return false
	}
	if buf[3]&0xF0 != 0x10 {
		return false
	}
	frameSync := ((uint16(buf[4]) << 8) | uint16(buf[5])) & frameSyncMask
	if frameSync != frameSyncF && frameSync != frameSyncI {
		return false
	}
	if mpegSectionCRC32(buf[4:188]) != 0 {
		return false
	}
	relativeStreamNumberMode := (buf[6] >> 4) & 0x01
	if relativeStreamNumberMode != 0 {
		return false
	}
	frameType := buf[6] & 0x0F
	if frameType != 1 && frameType != 2 {
		return false
	}

	desc.continuityCounter = buf[3] & 0x0F
	desc.versionNumber = (buf[6] >> 5) & 0x07
	desc.frameType = frameType

	for i := 0; i < numStreams; i++ {
		s := &desc.streamInfo[i]
		s.streamStatus = (buf[7+i/8] >> (7 - uint(i%8))) & 0x01
		s.streamID = (uint16(buf[9+4*i]) << 8) | uint16(buf[10+4*i])
		s.originalNetworkID = (uint16(buf[11+4*i]) << 8) | uint16(buf[12+4*i])
		s.receiveStatus = (buf[69+i/4] >> uint((3-i%4)*2)) & 0x03
		s.streamType = (buf[125+i/8] >> (7 - uint(i%8))) & 0x01
	}

	desc.emergencyIndicator = buf[72] & 0x01

	for i := 0; i < numSlots; i++ {
		b := buf[73+i/2]
		if i%2 == 0 {
			desc.relativeStreamNumber[i] = (b >> 4) & 0x0F
		} else {
			desc.relativeStreamNumber[i] = b & 0x0F
		}
	}

	desc.groupID = buf[127]
	desc.numberOfCarriers = buf[128]
	desc.carrierSequence = buf[129]
	desc.numberOfFrames = (buf[130] >> 4) & 0x0F
	desc.framePosition = buf[130] & 0x0F

	return true
}
