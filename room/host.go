package room

import (
	"context"
	"fmt"
	"time"

	"lanbridge/mcnet"
	"lanbridge/overlay"
	"lanbridge/registry"
	"lanbridge/scaffold"
)

// runHost drives the Host track from HostPrepare through HostRunning (or
// Error), then blocks servicing HostRunning's periodic checks until ctx is
// cancelled by Stop/Retry.
func (c *Controller) runHost(ctx context.Context) {
	defer c.wg.Done()

	c.setState(StateHostPrepare, RoleHost)
	c.log.Infof("host: preparing runtime for room %s", c.roomCodeStr)

	if !c.hostScaffoldingStarting(ctx) {
		return
	}
	if !c.hostOverlayStarting(ctx) {
		return
	}
	c.hostMinecraftDetectingAndRun(ctx)
}

func (c *Controller) hostScaffoldingStarting(ctx context.Context) bool {
	c.setState(StateHostScaffoldingStarting, RoleHost)

	srv := scaffold.NewServer(c.stats)
	srv.SetHeartbeatTimeout(c.cfg.HeartbeatTimeout)
	if err := srv.Listen("0.0.0.0", c.scaffoldingPort); err != nil {
		c.fail(ReasonNone, "start scaffolding server: %v", err)
		return false
	}
	go srv.Serve()

	srv.SetHost(c.playerName, c.machineID, c.vendor)
	c.scaffSrv = srv
	c.syncPlayersFromRoster()

	return true
}

func (c *Controller) hostOverlayStarting(ctx context.Context) bool {
	c.setState(StateHostOverlayStarting, RoleHost)

	relays := overlay.ValidateRelays(c.cfg.RelayURLs, c.cfg.RelayProbeTimeout)
	if len(relays) == 0 {
		c.fail(ReasonNoValidRelays, "no valid relays")
		return false
	}

	port := c.scaffoldingPort
	hostname := fmt.Sprintf("scaffolding-mc-server-%d", c.scaffoldingPort)
	cfg := overlay.Config{
		NetworkName:     c.networkName,
		NetworkSecret:   c.networkSecret,
		Hostname:        hostname,
		IsHost:          true,
		ScaffoldingPort: &port,
		RelayURLs:       relays,
		BinaryPath:      c.cfg.OverlayBinaryPath,
	}
	if err := c.node.Start(ctx, cfg); err != nil {
		c.fail(ReasonOverlayTimeout, "start overlay: %v", err)
		return false
	}

	deadline := time.Now().Add(c.cfg.OverlayStartupTimeout)
	for {
		info, err := c.node.NodeInfo(ctx)
		if err == nil && info != nil {
			if v, verr := c.node.Version(ctx); verr == nil {
				c.vendor = composeVendor(vendorLauncherSuffix(c.vendor), v)
			}
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

// vendorLauncherSuffix extracts whatever trailed the product name in a
// provisional vendor string, so re-composing it after the overlay version
// becomes known doesn't lose a launcher-supplied custom string.
func vendorLauncherSuffix(vendor string) string {
	prefix := product + " "
	if len(vendor) > len(prefix) && vendor[:len(prefix)] == prefix {
		return vendor[len(prefix):]
	}
	return ""
}

func (c *Controller) hostMinecraftDetectingAndRun(ctx context.Context) {
	c.setState(StateHostMinecraftDetecting, RoleHost)

	detectTicker := time.NewTicker(c.cfg.TickInterval)
	defer detectTicker.Stop()

	if !c.cfg.EagerMode {
		for !c.tryDetectMinecraft() {
			select {
			case <-ctx.Done():
				return
			case <-detectTicker.C:
			}
		}
	}
	detectTicker.Stop()

	c.setState(StateHostRunning, RoleHost)

	runTicker := time.NewTicker(runningTick)
	defer runTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-runTicker.C:
		}

		if !c.hostRunningStep(ctx) {
			return
		}
	}
}

func (c *Controller) tryDetectMinecraft() bool {
	local, err := registry.LocalIPv4s()
	if err != nil {
		c.log.Debugf("enumerate local IPv4s: %v", err)
		return false
	}

	entries := c.reg.FindLocalNetwork(local, nil)
	if len(entries) == 0 {
		return false
	}

	entry := entries[0]
	port := entry.Endpoint.Port
	c.applyMinecraftPort(&port)
	return true
}

func (c *Controller) applyMinecraftPort(port *uint16) {
	c.mu.Lock()
	changed := (c.mcPort == nil) != (port == nil)
	if !changed && c.mcPort != nil && port != nil {
		changed = *c.mcPort != *port
	}
	c.mcPort = port
	c.mu.Unlock()

	if !changed {
		return
	}

	c.scaffSrv.SetMinecraftPort(port)

	if port == nil {
		c.node.SetTCPWhitelist(c.ctx, []string{portStr(c.scaffoldingPort)})
		c.node.SetUDPWhitelist(c.ctx, nil)
	} else {
		c.node.SetTCPWhitelist(c.ctx, []string{portStr(c.scaffoldingPort), portStr(*port)})
		c.node.SetUDPWhitelist(c.ctx, []string{portStr(*port)})
	}

	c.notify()
}

func (c *Controller) hostRunningStep(ctx context.Context) bool {
	if _, err := c.node.NodeInfo(ctx); err != nil {
		c.fail(ReasonOverlayExited, "overlay exited: %v", err)
		return false
	}

	if ok := c.tryDetectMinecraft(); !ok {
		c.mu.Lock()
		wasSet := c.mcPort != nil
		c.mu.Unlock()
		if wasSet {
			c.applyMinecraftPort(nil)
		}
	}

	if !c.cfg.EagerMode {
		c.mu.Lock()
		port := c.mcPort
		c.mu.Unlock()
		if port != nil {
			if mcnet.LegacyProbe(*port) {
				c.legacyFailures = 0
			} else {
				c.legacyFailures++
				if c.legacyFailures >= c.cfg.MCOfflineThreshold {
					c.fail(ReasonMCOffline, "minecraft server appears offline")
					return false
				}
			}
		}
	}

	return true
}

func portStr(p uint16) string {
	return fmt.Sprintf("%d", p)
}

func (c *Controller) syncPlayersFromRoster() {
	// Seeds the status player list with the HOST entry that SetHost has
	// just installed, built from the controller's own fields. The
	// Scaffolding roster is not read here, so GUEST entries do not appear
	// in the Host's status players.
	c.mu.Lock()
	c.players = []PlayerProfileView{{
		Name:      c.playerName,
		MachineID: c.machineID,
		Vendor:    c.vendor,
		Kind:      "HOST",
	}}
	c.mu.Unlock()
}
