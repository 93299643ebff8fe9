package mcnet

import (
	stdnet "net"
	"time"

	"golang.org/x/net/ipv4"

	"lanbridge/logger"
)

// Sighting is one parsed beacon, timestamped at the moment it was received.
type Sighting struct {
	Beacon
	From    stdnet.IP
	SeenAt  time.Time
}

// Listener joins the LAN-beacon multicast group on every eligible IPv4
// interface and emits a Sighting for each well-formed datagram it receives.
type Listener struct {
	log  *logger.Logger
	conn *ipv4.PacketConn
	raw  *stdnet.UDPConn

	Sightings chan Sighting
}

// NewListener binds 0.0.0.0:4445 and joins the multicast group on every
// operationally-up, non-loopback, non-link-local IPv4 interface.
func NewListener() (*Listener, error) {
	groupAddr, err := stdnet.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return nil, err
	}

	conn, err := stdnet.ListenUDP("udp4", &stdnet.UDPAddr{IP: stdnet.IPv4zero, Port: groupAddr.Port})
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, err
	}

	ifaces, err := stdnet.Interfaces()
	if err != nil {
		conn.Close()
		return nil, err
	}

	l := &Listener{
		log:       logger.New("mcnet.listener"),
		conn:      pc,
		raw:       conn,
		Sightings: make(chan Sighting, 32),
	}

	joined := 0
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&stdnet.FlagUp == 0 || iface.Flags&stdnet.FlagLoopback != 0 {
			continue
		}
		if !hasRoutableIPv4(iface) {
			continue
		}
		if err := pc.JoinGroup(&iface, groupAddr); err != nil {
			l.log.Debugf("join group on %s: %v", iface.Name, err)
			continue
		}
		joined++
	}
	l.log.Infof("joined LAN beacon multicast group on %d interface(s)", joined)

	return l, nil
}

// hasRoutableIPv4 reports whether iface carries an IPv4 address outside the
// 169.254.0.0/16 link-local range.
func hasRoutableIPv4(iface stdnet.Interface) bool {
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipNet, ok := a.(*stdnet.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		if ip4[0] == 169 && ip4[1] == 254 {
			continue
		}
		return true
	}
	return false
}

// Run reads datagrams until done is closed or the socket errors. Well-formed
// beacons are pushed onto Sightings; malformed ones are dropped silently.
func (l *Listener) Run(done <-chan struct{}) error {
	defer close(l.Sightings)

	buf := make([]byte, 2048)
	for {
		select {
		case <-done:
			return nil
		default:
		}

		l.raw.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(stdnet.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-done:
				return nil
			default:
				return err
			}
		}

		beacon, err := ParseBeacon(string(buf[:n]))
		if err != nil {
			continue
		}

		var fromIP stdnet.IP
		if udpAddr, ok := src.(*stdnet.UDPAddr); ok {
			fromIP = udpAddr.IP
		}

		select {
		case l.Sightings <- Sighting{Beacon: beacon, From: fromIP, SeenAt: time.Now()}:
		default:
			l.log.Debugf("sightings channel full, dropping beacon from %s", fromIP)
		}
	}
}

// Close releases the underlying socket.
func (l *Listener) Close() error {
	return l.raw.Close()
}
