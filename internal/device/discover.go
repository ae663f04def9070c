package device

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

// DiscoverPort is the UDP port used for head-end discovery.
const DiscoverPort = 65001

// BroadcastAddr is the LAN broadcast address used by Discover.
const BroadcastAddr = "255.255.255.255"

// Head describes one TSMF head-end device as announced over discovery.
type Head struct {
	DeviceID     uint32
	FriendlyName string
	SourceAddr   string // dialable as "tcp://host:port"
	RemoteAddr   string // UDP address the reply was received from
}

// DiscoverServer answers broadcast discovery requests on behalf of one head
// device. It is the announcing side of the protocol; a demultiplexer
// process uses Discover, not DiscoverServer, to find a head-end.
type DiscoverServer struct {
	head Head
	conn *net.UDPConn
}

// NewDiscoverServer binds a UDP discovery responder for head on port.
func NewDiscoverServer(head Head, port int) (*DiscoverServer, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port, IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}
	return &DiscoverServer{head: head, conn: conn}, nil
}

// Run answers discovery requests until ctx is cancelled or Close is called.
func (s *DiscoverServer) Run(ctx context.Context) error {
	log.Printf("device: discovery listening on UDP port %d", s.conn.LocalAddr().(*net.UDPAddr).Port)
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, clientAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
		if n < 4 {
			continue
		}
		packet, err := Unmarshal(buf[:n])
		if err != nil {
			log.Printf("device: discover: parse error from %s: %v", clientAddr, err)
			continue
		}
		if packet.Type != TypeDiscoverReq {
			continue
		}
		tlvs, err := UnmarshalTLVs(packet.Payload)
		if err != nil {
			log.Printf("device: discover: TLV parse error from %s: %v", clientAddr, err)
			continue
		}
		reqDeviceID := uint32(DeviceIDWildcard)
		if di := FindTLV(tlvs, TagDeviceID); di != nil && len(di.Value) >= 4 {
			reqDeviceID = bytesToUint32(di.Value)
		}
		if reqDeviceID != DeviceIDWildcard && reqDeviceID != s.head.DeviceID {
			continue
		}
		reply := newDiscoverRpy(s.head).Marshal()
		if _, err := s.conn.WriteToUDP(reply, clientAddr); err != nil {
			log.Printf("device: discover: write error to %s: %v", clientAddr, err)
		}
	}
}

// Close stops the discovery responder.
func (s *DiscoverServer) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Discover broadcasts a discovery request and collects replies until ctx's
// deadline, or for 3 seconds when ctx has none; cancelling ctx does not end
// collection early. It returns whatever heads answered before the deadline;
// an empty slice (not an error) means nobody answered.
func Discover(ctx context.Context, deviceID uint32) ([]Head, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}
	defer conn.Close()

	req := newDiscoverReq(deviceID).Marshal()
	dst := &net.UDPAddr{IP: net.ParseIP(BroadcastAddr), Port: DiscoverPort}
	if _, err := conn.WriteToUDP(req, dst); err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	}

	var heads []Head
	buf := make([]byte, 4096)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			break // read deadline reached (or any read error) ends collection, not an error
		}
		packet, err := Unmarshal(buf[:n])
		if err != nil || packet.Type != TypeDiscoverRpy {
			continue
		}
		tlvs, err := UnmarshalTLVs(packet.Payload)
		if err != nil {
			continue
		}
		h := Head{RemoteAddr: addr.String()}
		if di := FindTLV(tlvs, TagDeviceID); di != nil && len(di.Value) >= 4 {
			h.DeviceID = bytesToUint32(di.Value)
		}
		if sa := FindTLV(tlvs, TagSourceAddr); sa != nil {
			h.SourceAddr = cString(sa.Value)
		}
		if fn := FindTLV(tlvs, TagFriendlyName); fn != nil {
			h.FriendlyName = cString(fn.Value)
		}
		heads = append(heads, h)
	}
	return heads, nil
}

// OpenStream dials a source address of the form "tcp://host:port" and
// returns the raw connection for Driver.Drive to consume. Any other form is
// rejected: file and stdin sources are opened directly by the caller, not
// through this discovery-oriented dialer.
func OpenStream(ctx context.Context, sourceAddr string) (net.Conn, error) {
	addr, ok := strings.CutPrefix(sourceAddr, "tcp://")
	if !ok {
		return nil, fmt.Errorf("device: OpenStream requires a tcp:// source address, got %q", sourceAddr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
