package tsmf

import "testing"

func TestSyncPacket_insufficientData(t *testing.T) {
	buf := make([]byte, syncSearchWindow-1)
	truncate, size, ok := syncPacket(buf)
	if ok {
		t.Fatal("expected ok=false for a buffer shorter than the search window")
	}
	if truncate != 0 || size != 0 {
		t.Errorf("truncate=%d size=%d, want 0,0", truncate, size)
	}
}

func TestSyncPacket_locks188Stride(t *testing.T) {
	buf := make([]byte, syncSearchWindow+10)
	for i := 0; i < len(buf); i += 188 {
		buf[i] = syncByte
	}
	truncate, size, ok := syncPacket(buf)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if size != 188 {
		t.Errorf("packetSize = %d, want 188", size)
	}
	if truncate != 0 {
		t.Errorf("truncate = %d, want 0 (already aligned)", truncate)
	}
}

func TestSyncPacket_locks204Stride(t *testing.T) {
	buf := make([]byte, syncSearchWindow+10)
	for i := 0; i < len(buf); i += 204 {
		buf[i] = syncByte
	}
	_, size, ok := syncPacket(buf)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if size != 204 {
		t.Errorf("packetSize = %d, want 204", size)
	}
}

func TestSyncPacket_skipsLeadingJunk(t *testing.T) {
	junk := 5
	buf := make([]byte, junk+syncSearchWindow+10)
	for i := junk; i < len(buf); i += 188 {
		buf[i] = syncByte
	}
	truncate, size, ok := syncPacket(buf)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if truncate != junk {
		t.Errorf("truncate = %d, want %d", truncate, junk)
	}
	if size != 188 {
		t.Errorf("packetSize = %d, want 188", size)
	}
}

func TestSyncPacket_noMatchDiscardsWindow(t *testing.T) {
	buf := make([]byte, syncSearchWindow+10)
	for i := range buf {
		buf[i] = 0xAA
	}
	truncate, size, ok := syncPacket(buf)
	if !ok {
		t.Fatal("expected ok=true (search exhausted)")
	}
	if size != 0 {
		t.Errorf("packetSize = %d, want 0 (no stride found)", size)
	}
	if truncate != 208 {
		t.Errorf("truncate = %d, want 208", truncate)
	}
}
