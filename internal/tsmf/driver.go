// Package tsmf implements the core of an ARIB TSMF (Transport Stream
// Multiplexing Frame) demultiplexer: a streaming parser that recovers TS
// packet framing from an unframed byte stream, decodes the TSMF
// multiplex-frame header on PID 0x002F, and emits only the packets (or
// reassembled TLV payloads) belonging to a caller-selected sub-stream.
//
// The package is intentionally dependency-free: it neither logs nor blocks
// nor allocates beyond what a single Drive call needs, so it can sit behind
// any transport (file, socket, pipe) a caller chooses.
package tsmf

import "sync"

// demuxState is the parser's driver-thread-only state: the synchronization
// position, the slot counter, the latest decoded frame header, and the
// residual byte buffers. It is touched only from inside Drive and needs no
// lock — unlike the four reconfiguration fields on Driver, which a separate
// actor may write at any time.
type demuxState struct {
	packetSize  int // 0 = not synchronized
	slotCounter int // -1 = no header seen; 0 = just saw header; 1..52 = slot of next packet
	frame       frameDescriptor

	readBuf []byte // residue from previous Drive calls, prepended to new input
	tlvBuf  []byte // in-progress reassembly of a fragmented TLV payload

	// Running counters for Driver.Stats, purely observational: nothing in
	// the parsing logic above reads them back.
	bytesRead       uint64
	syncAcquired    uint64
	syncLost        uint64
	headersSeen     uint64
	tlvFragments    uint64
	packetsEmitted  uint64
	packetsRejected uint64
}

// Stats is a point-in-time snapshot of a Driver's internal counters and
// synchronization state, for an operator-facing metrics endpoint. It is
// read-only: nothing in the package consults it, and computing it never
// mutates Driver state.
type Stats struct {
	PacketSize      int
	SlotCounter     int
	BytesRead       uint64
	SyncAcquired    uint64
	SyncLost        uint64
	HeadersSeen     uint64
	TLVFragments    uint64
	PacketsEmitted  uint64
	PacketsRejected uint64
}

// Stats returns a snapshot of the driver's counters. Safe to call from any
// goroutine between Drive calls; concurrent with an in-flight Drive it may
// observe a torn (but never corrupt) snapshot, which is acceptable for
// metrics reporting.
func (d *Driver) Stats() Stats {
	s := &d.state
	return Stats{
		PacketSize:      s.packetSize,
		SlotCounter:     s.slotCounter,
		BytesRead:       s.bytesRead,
		SyncAcquired:    s.syncAcquired,
		SyncLost:        s.syncLost,
		HeadersSeen:     s.headersSeen,
		TLVFragments:    s.tlvFragments,
		PacketsEmitted:  s.packetsEmitted,
		PacketsRejected: s.packetsRejected,
	}
}

// Driver is the public entry point: it owns residual byte buffers, runs the
// synchronizer/header-decoder/slot-router pipeline over caller-supplied
// chunks, and mediates reconfiguration requests (SetStream/Disable) from a
// separate actor under a small critical section.
//
// A Driver must not be used from more than one goroutine for Drive calls
// concurrently; SetStream and Disable may be called from any goroutine at
// any time.
type Driver struct {
	// mu guards exactly the four fields below. Drive snapshots them once at
	// entry and re-reads clearRequested just before emission; everything else (state)
	// belongs to the single driving goroutine and needs no lock.
	mu             sync.Mutex
	selectedONID   uint16
	selectedTSID   uint16
	isRelative     bool
	clearRequested bool

	state demuxState
}

// NewDriver returns a Driver in pass-through mode (selectedTSID == 0xFFFF),
// matching Disable's effect.
func NewDriver() *Driver {
	d := &Driver{
		selectedONID: 0xFFFF,
		selectedTSID: 0xFFFF,
	}
	d.state.slotCounter = -1
	return d
}

// SetStream updates the sub-stream filter and requests resynchronization on
// the next Drive call. If relative is true, tsid is treated as a zero-based
// relative stream index (resolved directly to relativeStreamNumber tsid+1)
// rather than a real transport stream id matched against the decoded
// header's stream table.
func (d *Driver) SetStream(onid, tsid uint16, relative bool) {
	d.mu.Lock()
	d.selectedONID = onid
	d.selectedTSID = tsid
	d.isRelative = relative
	d.clearRequested = true
	d.mu.Unlock()
}

// Disable switches the driver to pass-through mode: equivalent to
// SetStream(0xFFFF, 0xFFFF, false).
func (d *Driver) Disable() {
	d.SetStream(0xFFFF, 0xFFFF, false)
}

// Drive feeds input into the parser and returns any bytes that should be
// emitted to the downstream consumer, or nil if nothing is ready yet.
//
// The returned slice is newly allocated for this call; ownership passes to
// the caller. Drive never panics or returns an error: all parse failures
// (insufficient data, sync loss, CRC failure, unmatched sub-stream,
// malformed TLV fragment) are handled per the package's silent-recovery
// policy and simply produce less or no output.
//
// dropNulls, when true, additionally suppresses any packet on the null PID
// 0x1FFF from the emitted output.
func (d *Driver) Drive(input []byte, dropNulls bool) []byte {
	d.mu.Lock()
	onid := d.selectedONID
	tsid := d.selectedTSID
	relative := d.isRelative
	cleared := d.clearRequested
	d.clearRequested = false
	d.mu.Unlock()

	s := &d.state
	if cleared {
		s.slotCounter = -1
		s.packetSize = 0
		s.readBuf = s.readBuf[:0]
		s.tlvBuf = s.tlvBuf[:0]
	}

	s.bytesRead += uint64(len(input))
	s.readBuf = append(s.readBuf, input...)
	pos := 0
	var out []byte

	for len(s.readBuf)-pos >= s.packetSize {
		if s.packetSize == 0 {
			truncate, size, ok := syncPacket(s.readBuf[pos:])
			if !ok {
				break
			}
			pos += truncate
			s.packetSize = size
			if size != 0 {
				s.syncAcquired++
			}
			continue
		}

		pkt := s.readBuf[pos : pos+s.packetSize]
		res := routePacket(s, onid, tsid, relative, pkt, s.packetSize)

		switch {
		case res.syncLost:
			s.syncLost++
		case res.isHeader:
			s.headersSeen++
		case res.action == actionReject:
			s.packetsRejected++
		default:
			pid := packetPID(pkt)
			if !dropNulls || pid != nullPID {
				switch res.action {
				case actionPassThrough:
					out = append(out, pkt...)
					s.packetsEmitted++
				case actionTLVFragment:
					out = appendTLVFragment(s, out, pkt, res.tlvHeaderSize, res.tlvStart)
					s.tlvFragments++
				}
			}
		}

		pos += s.packetSize
	}

	d.mu.Lock()
	clearedDuring := d.clearRequested
	d.mu.Unlock()
	if clearedDuring {
		out = nil
	}

	s.readBuf = append(s.readBuf[:0], s.readBuf[pos:]...)

	return out
}

// appendTLVFragment folds one TLV-carriage packet into the in-progress
// reassembly buffer, flushing a completed payload into out when the
// fragment carries a new payload-start indicator. A fragment with no start
// indicator is appended to tlvBuf while a reassembly is in progress and
// dropped when tlvBuf is empty; a fragment with a start indicator first flushes the
// old tlvBuf plus the leading bytes of the current packet up to the new
// start offset, then begins a fresh tlvBuf from that offset.
func appendTLVFragment(s *demuxState, out []byte, pkt []byte, headerSize, start int) []byte {
	if start == 0 {
		if len(s.tlvBuf) > 0 {
			s.tlvBuf = append(s.tlvBuf, pkt[headerSize:len(pkt)]...)
		}
		return out
	}
	if len(s.tlvBuf) > 0 {
		s.tlvBuf = append(s.tlvBuf, pkt[headerSize:start]...)
		out = append(out, s.tlvBuf...)
		s.tlvBuf = s.tlvBuf[:0]
	}
	s.tlvBuf = append(s.tlvBuf, pkt[start:len(pkt)]...)
	return out
}
