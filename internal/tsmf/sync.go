package tsmf

// syncByte is the MPEG Transport Stream packet sync byte.
const syncByte = 0x47

// candidateSizes lists the TS packet strides this demultiplexer can lock
// onto, in probe order. 188 is the native payload size; 204 adds a fixed
// Reed-Solomon FEC tail; 192 and 208 add a 4-byte timestamp prefix. Probing
// 188/204 before 192/208 avoids mis-syncing on a timestamp byte that
// happens to equal the sync byte.
var candidateSizes = [4]int{188, 204, 192, 208}

// syncSearchWindow is the minimum number of bytes required before attempting
// synchronization: three packets at the largest candidate stride, plus one,
// so that every candidate stride can be confirmed by two repeats of the
// sync byte.
const syncSearchWindow = 3*208 + 1

// syncPacket inspects buf (length l = len(buf)) and attempts to find the TS
// packet stride. It returns (truncate, packetSize, ok):
//
//   - ok == false means "insufficient data to attempt synchronization yet";
//     truncate and packetSize are both 0 and the caller should retain buf
//     and wait for more bytes.
//   - ok == true, packetSize == 0 means "searched the full window and found
//     no consistent stride"; truncate is 208, the number of leading bytes
//     (all offsets searched) the caller should now discard, advancing past the noise.
//   - ok == true, packetSize != 0 means a stride was found; truncate is the
//     number of leading bytes to discard before the first synced packet.
//
// A match requires three consecutive sync bytes spaced by the candidate
// stride — a false positive self-corrects within one packet on the next
// drive call, since a wrong stride desyncs immediately.
func syncPacket(buf []byte) (truncate int, packetSize int, ok bool) {
	if len(buf) < syncSearchWindow {
		return 0, 0, false
	}
	for i := 0; i < 208; i++ {
		if buf[i] != syncByte {
			continue
		}
		for _, s := range candidateSizes {
			if buf[i+s] == syncByte && buf[i+2*s] == syncByte {
				return i, s, true
			}
		}
	}
	return 208, 0, true
}
