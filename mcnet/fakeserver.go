package mcnet

import (
	stdnet "net"
	"time"

	"golang.org/x/net/ipv4"

	"lanbridge/logger"
)

const beaconInterval = 1500 * time.Millisecond

// maxVendorLen is the MOTD vendor-string truncation bound.
const maxVendorLen = 30

// TruncateVendor shortens s to at most maxVendorLen characters, appending an
// ellipsis when truncated.
func TruncateVendor(s string) string {
	if len(s) <= maxVendorLen {
		return s
	}
	return s[:maxVendorLen-3] + "..."
}

// FakeServer rebroadcasts a remote Minecraft session as a LAN world on the
// Guest's own network: it emits the same beacon payload a real server would,
// for a port that is in fact forwarded to the Host over the overlay.
type FakeServer struct {
	log  *logger.Logger
	conn *ipv4.PacketConn
	raw  *stdnet.UDPConn

	groupAddr *stdnet.UDPAddr
	payload   []byte

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewFakeServer builds the beacon payload once from hostName and vendor,
// truncating vendor per TruncateVendor, for the given forwarded port.
func NewFakeServer(hostName, vendor string, port uint16) (*FakeServer, error) {
	motd := hostName + "'s World [" + TruncateVendor(vendor) + "]"

	groupAddr, err := stdnet.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return nil, err
	}

	raw, err := stdnet.ListenUDP("udp4", &stdnet.UDPAddr{IP: stdnet.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(raw)
	if err := pc.SetMulticastTTL(4); err != nil {
		raw.Close()
		return nil, err
	}
	if err := pc.JoinGroup(nil, groupAddr); err != nil {
		raw.Close()
		return nil, err
	}

	return &FakeServer{
		log:       logger.New("mcnet.fakeserver"),
		conn:      pc,
		raw:       raw,
		groupAddr: groupAddr,
		payload:   []byte(Encode(motd, port)),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Run emits the beacon every ~1.5s until Stop is called. It blocks; run it
// in its own goroutine.
func (f *FakeServer) Run() {
	defer close(f.doneCh)

	ticker := time.NewTicker(beaconInterval)
	defer ticker.Stop()

	for {
		if _, err := f.conn.WriteTo(f.payload, nil, f.groupAddr); err != nil {
			f.log.Debugf("beacon send failed: %v", err)
		}

		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the emitter loop and waits for Run to return.
func (f *FakeServer) Stop() {
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.doneCh
	f.raw.Close()
}
