package device

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDiscoverReqRpy_wireRoundTrip(t *testing.T) {
	req := newDiscoverReq(0x12345678)
	wire := req.Marshal()
	got, err := Unmarshal(wire)
	if err != nil {
		t.Fatalf("Unmarshal request: %v", err)
	}
	tlvs, err := UnmarshalTLVs(got.Payload)
	if err != nil {
		t.Fatalf("UnmarshalTLVs: %v", err)
	}
	di := FindTLV(tlvs, TagDeviceID)
	if di == nil || bytesToUint32(di.Value) != 0x12345678 {
		t.Fatalf("device id TLV missing or wrong: %+v", di)
	}

	rpy := newDiscoverRpy(Head{DeviceID: 0x12345678, FriendlyName: "Head1", SourceAddr: "tcp://10.0.0.5:1234"})
	wire = rpy.Marshal()
	got, err = Unmarshal(wire)
	if err != nil {
		t.Fatalf("Unmarshal reply: %v", err)
	}
	tlvs, err = UnmarshalTLVs(got.Payload)
	if err != nil {
		t.Fatalf("UnmarshalTLVs: %v", err)
	}
	if sa := FindTLV(tlvs, TagSourceAddr); sa == nil || cString(sa.Value) != "tcp://10.0.0.5:1234" {
		t.Fatalf("source addr TLV wrong: %+v", sa)
	}
	if fn := FindTLV(tlvs, TagFriendlyName); fn == nil || cString(fn.Value) != "Head1" {
		t.Fatalf("friendly name TLV wrong: %+v", fn)
	}
}

func TestOpenStream_rejectsNonTCP(t *testing.T) {
	if _, err := OpenStream(context.Background(), "/some/file/path"); err == nil {
		t.Fatal("expected error for non-tcp source address")
	}
	if _, err := OpenStream(context.Background(), "-"); err == nil {
		t.Fatal("expected error for stdin source address")
	}
}

func TestOpenStream_dialsTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := OpenStream(ctx, "tcp://"+ln.Addr().String())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	conn.Close()
}
