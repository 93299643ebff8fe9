package room

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	cnet "lanbridge/common/net"
	"lanbridge/mcnet"
	"lanbridge/overlay"
	"lanbridge/scaffold"
)

// runGuest drives the Guest track from GuestPrepare through GuestRunning
// (or Error), then blocks servicing GuestRunning's heartbeat cycle until
// ctx is cancelled by Stop/Retry.
func (c *Controller) runGuest(ctx context.Context) {
	defer c.wg.Done()

	c.setState(StateGuestPrepare, RoleGuest)
	c.log.Infof("guest: joining room %s", c.roomCodeStr)

	if !c.guestOverlayStarting(ctx) {
		return
	}
	if !c.guestDiscoveringCenter(ctx) {
		return
	}
	if !c.guestConnectingScaffolding(ctx) {
		return
	}
	c.guestRunning(ctx)
}

func (c *Controller) guestOverlayStarting(ctx context.Context) bool {
	c.setState(StateGuestOverlayStarting, RoleGuest)

	relays := overlay.ValidateRelays(c.cfg.RelayURLs, c.cfg.RelayProbeTimeout)
	if len(relays) == 0 {
		c.fail(ReasonNoValidRelays, "no valid relays")
		return false
	}

	cfg := overlay.Config{
		NetworkName:   c.networkName,
		NetworkSecret: c.networkSecret,
		Hostname:      fmt.Sprintf("guest-%s", c.machineID[:8]),
		IsHost:        false,
		RelayURLs:     relays,
		BinaryPath:    c.cfg.OverlayBinaryPath,
	}
	if err := c.node.Start(ctx, cfg); err != nil {
		c.fail(ReasonOverlayTimeout, "start overlay: %v", err)
		return false
	}

	deadline := time.Now().Add(c.cfg.OverlayStartupTimeout)
	for {
		if info, err := c.node.NodeInfo(ctx); err == nil && info != nil {
			return true
		}
		if time.Now().After(deadline) {
			c.fail(ReasonOverlayTimeout, "startup timeout")
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(overlayPollInterval):
		}
	}
}

// guestDiscoveringCenter polls the peer list every discoveryInterval
// looking for a host whose hostname matches "scaffolding-mc-server-<port>"
// with port > 1024. Zero matches after discoveryTimeout is a discovery
// timeout; more than one match is ambiguous and fatal.
func (c *Controller) guestDiscoveringCenter(ctx context.Context) bool {
	c.setState(StateGuestDiscoveringCenter, RoleGuest)

	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(c.cfg.DiscoveryTimeout)

	for {
		peers, err := c.node.Peers(ctx)
		if err == nil {
			centers := matchCenters(peers)
			switch len(centers) {
			case 0:
				// keep polling
			case 1:
				center := centers[0]
				c.virtualIP = center.IPv4
				c.centerPort = center.port
				return true
			default:
				c.fail(ReasonMultipleCenters, "multiple centers found on network")
				return false
			}
		}

		if time.Now().After(deadline) {
			c.fail(ReasonDiscoveryTimeout, "discovery timeout")
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

type centerMatch struct {
	overlay.PeerInfo
	port uint16
}

const centerHostnamePrefix = "scaffolding-mc-server-"

func matchCenters(peers []overlay.PeerInfo) []centerMatch {
	var out []centerMatch
	for _, p := range peers {
		if !strings.HasPrefix(p.Hostname, centerHostnamePrefix) {
			continue
		}
		portStr := p.Hostname[len(centerHostnamePrefix):]
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || n <= 1024 {
			continue
		}
		out = append(out, centerMatch{PeerInfo: p, port: uint16(n)})
	}
	return out
}

// guestConnectingScaffolding forwards the center's scaffolding port to a
// loopback port, opens a Client against it, and verifies the connection by
// exchanging a ping and one player_ping heartbeat. Transient failures are
// retried with backoff; the spec treats a failed ping/profile exchange here
// as transient, not fatal, since the overlay tunnel may still be settling.
func (c *Controller) guestConnectingScaffolding(ctx context.Context) bool {
	c.setState(StateGuestConnectingScaffolding, RoleGuest)

	local := cnet.TCPDestination("0.0.0.0", c.centerPort).NetAddr()
	remote := cnet.TCPDestination(c.virtualIP, c.centerPort).NetAddr()
	if _, err := c.node.AddPortForward(ctx, overlay.ProtoTCP, local, remote); err != nil {
		c.fail(ReasonNone, "forward scaffolding port: %v", err)
		return false
	}

	var lastErr error
	for attempt := 0; attempt < scaffoldingRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(scaffoldingBackoff):
			}
		}

		cli, err := scaffold.Connect("127.0.0.1", c.centerPort)
		if err != nil {
			lastErr = err
			continue
		}

		ok, err := cli.Ping()
		if err != nil || !ok {
			lastErr = fmt.Errorf("ping failed: %v", err)
			cli.Close()
			continue
		}

		if _, err := cli.Protocols(); err != nil {
			lastErr = err
			cli.Close()
			continue
		}

		if err := cli.PlayerPing(c.playerName, c.machineID, c.vendor); err != nil {
			lastErr = err
			cli.Close()
			continue
		}

		c.scaffCli = cli
		return true
	}

	c.fail(ReasonNone, "connect to scaffolding: %v", lastErr)
	return false
}

func (c *Controller) guestRunning(ctx context.Context) {
	c.setState(StateGuestRunning, RoleGuest)

	ticker := time.NewTicker(runningTick)
	defer ticker.Stop()

	fetchedHost := false
	heartbeatFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := c.scaffCli.PlayerPing(c.playerName, c.machineID, c.vendor); err != nil {
			heartbeatFailures++
			if heartbeatFailures >= c.cfg.MCOfflineThreshold {
				c.fail(ReasonHeartbeatFailed, "heartbeat to host failed: %v", err)
				return
			}
			continue
		}
		heartbeatFailures = 0

		port, err := c.scaffCli.ServerPort()
		if err == nil && port != nil {
			c.guestApplyMinecraftPort(ctx, *port)
		}

		if !fetchedHost {
			c.guestFetchHostProfile()
			fetchedHost = true
		}
	}
}

func (c *Controller) guestApplyMinecraftPort(ctx context.Context, port uint16) {
	c.mu.Lock()
	already := c.mcPort != nil && *c.mcPort == port
	c.mu.Unlock()
	if already {
		return
	}

	tcpLocal := cnet.TCPDestination("0.0.0.0", port).NetAddr()
	tcpRemote := cnet.TCPDestination(c.virtualIP, port).NetAddr()
	if _, err := c.node.AddPortForward(ctx, overlay.ProtoTCP, tcpLocal, tcpRemote); err != nil {
		c.log.Warnf("forward minecraft tcp port: %v", err)
		return
	}
	udpLocal := cnet.UDPDestination("0.0.0.0", port).NetAddr()
	udpRemote := cnet.UDPDestination(c.virtualIP, port).NetAddr()
	if _, err := c.node.AddPortForward(ctx, overlay.ProtoUDP, udpLocal, udpRemote); err != nil {
		c.log.Warnf("forward minecraft udp port: %v", err)
	}

	fs, err := mcnet.NewFakeServer(c.hostDisplayName(), c.vendor, port)
	if err != nil {
		c.log.Warnf("start fake lan beacon: %v", err)
		return
	}
	go fs.Run()

	c.mu.Lock()
	c.mcPort = &port
	c.fakeSrv = fs
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) guestFetchHostProfile() {
	profiles, err := c.scaffCli.PlayerProfilesList()
	if err != nil {
		c.log.Debugf("fetch player profiles: %v", err)
		return
	}

	var players []PlayerProfileView
	hostName := ""
	for _, p := range profiles {
		players = append(players, PlayerProfileView{
			Name:      p.Name,
			MachineID: p.MachineID,
			Vendor:    p.Vendor,
			Kind:      string(p.Kind),
		})
		if p.Kind == scaffold.ProfileHost {
			hostName = p.Name
		}
	}

	c.mu.Lock()
	c.players = players
	c.mu.Unlock()
	if hostName != "" {
		c.hostNameCache = hostName
	}
	c.notify()
}

func (c *Controller) hostDisplayName() string {
	if c.hostNameCache != "" {
		return c.hostNameCache
	}
	return "LAN World"
}
