package tsmf

// tlvCarriagePID is the PID on which fragmented TLV payloads are carried
// inside a TSMF sub-stream whose streamType indicates TLV (as opposed to
// plain TS pass-through).
const tlvCarriagePID = 0x002D

// nullPID is the MPEG-TS null/stuffing packet PID.
const nullPID = 0x1FFF

// routeAction is the Slot Router's classification of one post-header TS
// packet, per spec §4.3.
type routeAction int

const (
	actionReject routeAction = iota
	actionPassThrough
	// actionTLVFragment carries tlvHeaderSize and tlvStart (offsets within
	// the packet) describing how to fold this packet into tlvBuf.
	actionTLVFragment
)

// routeResult is what the slot router decided for one packet.
type routeResult struct {
	action        routeAction
	tlvHeaderSize int // size of the fixed TS header preceding TLV payload
	tlvStart      int // offset of a new TLV payload start within the packet, 0 if none
	syncLost      bool
	isHeader      bool // this packet was a valid TSMF header, consumed but never emitted
}

// routePacket classifies pkt (exactly packetSize bytes, the first 188 of
// which are the logical TS packet) against the current selection. It may
// mutate d's slotCounter and frame as a side effect, exactly as the
// reference parser does: seeing a TSMF header resets slotCounter to 0 and
// is never itself emitted; a bad sync byte resets synchronization entirely.
func routePacket(d *demuxState, onid, tsid uint16, relative bool, pkt []byte, packetSize int) routeResult {
	if pkt[0] != syncByte {
		d.packetSize = 0
		d.slotCounter = -1
		return routeResult{action: actionReject, syncLost: true}
	}

	if tsid == 0xFFFF {
		return routeResult{action: actionPassThrough}
	}

	if decodeTSMFHeader(pkt, &d.frame) {
		d.slotCounter = 0
		return routeResult{action: actionReject, isHeader: true}
	}

	if d.slotCounter < 0 || d.slotCounter > 51 {
		return routeResult{action: actionReject}
	}
	d.slotCounter++
	slotIndex := d.slotCounter - 1 // in [0, 51]

	target := 0
	if relative {
		target = int(tsid) + 1
	} else {
		for i := 0; i < numStreams; i++ {
			si := &d.frame.streamInfo[i]
			if si.streamID == tsid &&
				(onid == 0xFFFF || si.originalNetworkID == onid) {
				target = i + 1
				break
			}
		}
	}
	if target < 1 || target > 15 {
		return routeResult{action: actionReject}
	}

	si := &d.frame.streamInfo[target-1]
	if si.streamStatus == 0 {
		return routeResult{action: actionReject}
	}
	if int(d.frame.relativeStreamNumber[slotIndex]) != target {
		return routeResult{action: actionReject}
	}

	if si.streamType == 1 {
		return routeResult{action: actionPassThrough}
	}

	// streamType == 0: TLV carriage. Must be error-free, non-priority, and
	// on the TLV carriage PID, or the packet is rejected outright.
	transportErrorIndicator := pkt[1] & 0x80
	if transportErrorIndicator != 0 {
		return routeResult{action: actionReject}
	}
	if (pkt[1]>>5)&0b101 != 0b000 {
		return routeResult{action: actionReject}
	}
	pid := (uint16(pkt[1]) << 8 | uint16(pkt[2])) & 0x1FFF
	if pid != tlvCarriagePID {
		return routeResult{action: actionReject}
	}

	payloadUnitStart := (pkt[1] >> 6) & 0x01
	var headerSize, start int
	if payloadUnitStart == 0 {
		headerSize, start = 3, 0
	} else {
		headerSize, start = 4, int(pkt[3])+4
	}
	if start > packetSize {
		return routeResult{action: actionReject}
	}
	return routeResult{action: actionTLVFragment, tlvHeaderSize: headerSize, tlvStart: start}
}

// packetPID reads the 13-bit PID out of a TS packet's second and third
// bytes, ignoring transport_error_indicator/PUSI/priority in the top 3 bits.
func packetPID(pkt []byte) uint16 {
	return (uint16(pkt[1])<<8 | uint16(pkt[2])) & 0x1FFF
}
