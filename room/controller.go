// Package room implements the RoomController: the Host/Guest two-track
// state machine that owns the Scaffolding server/client, the overlay child,
// LAN discovery, and the forwarded-port fake LAN beacon.
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lanbridge/config"
	"lanbridge/logger"
	"lanbridge/machineid"
	"lanbridge/mcnet"
	"lanbridge/overlay"
	"lanbridge/registry"
	"lanbridge/roomcode"
	"lanbridge/scaffold"
	"lanbridge/stats"
)

const product = "lanbridge"

// Timing knobs for the state machine's internal polling/retry loops. These
// are vars, not consts, so tests can shrink them before calling StartHost
// or StartGuest and exercise the full track in well under a second.
var (
	overlayPollInterval = 1 * time.Second
	discoveryInterval   = 1 * time.Second
	scaffoldingRetries  = 50
	scaffoldingBackoff  = 2 * time.Second
	runningTick         = 5 * time.Second
)

// NewNodeFunc constructs a fresh overlay.NetworkNode for one RoomRuntime.
// Production callers pass a func returning *overlay.ProcessAdapter; tests
// pass a func returning *overlay.Fake.
type NewNodeFunc func() overlay.NetworkNode

// Controller is the RoomController: it owns at most one RoomRuntime at a
// time and drives it through its Host or Guest track on a single goroutine.
type Controller struct {
	cfg     *config.Config
	stats   *stats.Stats
	reg     *registry.Registry
	newNode NewNodeFunc
	log     *logger.Logger

	mu       sync.Mutex
	state    State
	role     Role
	lastErr  string
	reason   Reason
	enteredAt time.Time
	lastUpdate time.Time

	roomCodeStr string
	players     []PlayerProfileView
	mcPort      *uint16

	listeners []func(RoomStatus)

	// runtime, valid only while state != Idle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	node   overlay.NetworkNode
	scaffSrv  *scaffold.Server
	scaffCli  *scaffold.Client
	fakeSrv   *mcnet.FakeServer

	machineID       string
	playerName      string
	vendor          string
	networkName     string
	networkSecret   string
	scaffoldingPort uint16
	virtualIP       string
	centerPort      uint16
	legacyFailures  int
	hostNameCache   string
}

// New constructs an idle Controller.
func New(cfg *config.Config, st *stats.Stats, reg *registry.Registry, newNode NewNodeFunc) *Controller {
	return &Controller{
		cfg:        cfg,
		stats:      st,
		reg:        reg,
		newNode:    newNode,
		log:        logger.New("room"),
		state:      StateIdle,
		enteredAt:  time.Now(),
		lastUpdate: time.Now(),
	}
}

// OnStateChanged registers fn to be called after every visible status
// mutation. Calls are made synchronously from the goroutine that made the
// mutation (the controller's own goroutine, or the caller of Stop/Retry),
// so fn must not block.
func (c *Controller) OnStateChanged(fn func(RoomStatus)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// GetStatus returns the current status snapshot.
func (c *Controller) GetStatus() RoomStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Stats exposes the shared counters so the upward façade can poll them.
func (c *Controller) Stats() stats.Snapshot {
	return c.stats.GetSnapshot()
}

func (c *Controller) statusLocked() RoomStatus {
	return RoomStatus{
		State:         c.state,
		Role:          c.role,
		Error:         c.lastErr,
		Reason:        c.reason,
		RoomCode:      c.roomCodeStr,
		Players:       append([]PlayerProfileView(nil), c.players...),
		MinecraftPort: c.mcPort,
		LastUpdate:    c.lastUpdate,
		Uptime:        time.Since(c.enteredAt),
	}
}

// setState mutates state (and role, when provided) and notifies listeners.
// Always called with c.mu unlocked; it takes the lock itself.
func (c *Controller) setState(state State, role Role) {
	c.mu.Lock()
	if state != c.state {
		c.enteredAt = time.Now()
	}
	c.state = state
	if role != "" {
		c.role = role
	}
	c.lastUpdate = time.Now()
	snap := c.statusLocked()
	listeners := append([]func(RoomStatus)(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	c.lastUpdate = time.Now()
	snap := c.statusLocked()
	listeners := append([]func(RoomStatus)(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) fail(reason Reason, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.lastErr = msg
	c.reason = reason
	c.state = StateError
	c.enteredAt = time.Now()
	c.lastUpdate = time.Now()
	c.log.Errorf("room error (%s): %s", reason, msg)
	snap := c.statusLocked()
	listeners := append([]func(RoomStatus)(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// StartHost begins the Host track. It returns once the runtime has been
// allocated; the state machine itself runs on its own goroutine.
func (c *Controller) StartHost(scaffoldingPort uint16, playerName, launcherCustom string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("room: cannot start_host from state %s", c.state)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = ctx
	c.cancel = cancel
	c.node = c.newNode()
	c.playerName = playerName
	c.scaffoldingPort = scaffoldingPort

	id, err := machineid.Load(c.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("room: load machine id: %w", err)
	}
	c.machineID = id

	code, err := roomcode.Generate()
	if err != nil {
		return fmt.Errorf("room: generate room code: %w", err)
	}
	parsed, err := roomcode.Parse(code)
	if err != nil {
		return fmt.Errorf("room: parse generated room code: %w", err)
	}
	c.networkName = parsed.NetworkName
	c.networkSecret = parsed.NetworkSecret

	c.vendor = composeVendor(launcherCustom, "")

	c.mu.Lock()
	c.roomCodeStr = code
	c.lastErr = ""
	c.reason = ReasonNone
	c.mcPort = nil
	c.players = nil
	c.mu.Unlock()

	c.setState(StateHostPrepare, RoleHost)

	c.wg.Add(1)
	go c.runHost(ctx)

	return nil
}

// StartGuest begins the Guest track for the given room code.
func (c *Controller) StartGuest(code string, playerName, launcherCustom string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("room: cannot start_guest from state %s", c.state)
	}
	c.mu.Unlock()

	parsed, err := roomcode.Parse(code)
	if err != nil {
		return fmt.Errorf("room: parse room code: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = ctx
	c.cancel = cancel
	c.node = c.newNode()
	c.playerName = playerName
	c.networkName = parsed.NetworkName
	c.networkSecret = parsed.NetworkSecret

	id, err := machineid.Load(c.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("room: load machine id: %w", err)
	}
	c.machineID = id
	c.vendor = composeVendor(launcherCustom, "")

	c.mu.Lock()
	c.roomCodeStr = code
	c.lastErr = ""
	c.reason = ReasonNone
	c.mcPort = nil
	c.players = nil
	c.mu.Unlock()

	c.setState(StateGuestPrepare, RoleGuest)

	c.wg.Add(1)
	go c.runGuest(ctx)

	return nil
}

func composeVendor(launcherCustom, overlayVersion string) string {
	v := product
	if overlayVersion != "" {
		v += " " + overlayVersion
	}
	if launcherCustom != "" {
		v += " " + launcherCustom
	}
	return v
}

// Stop moves to Stopping, tears the runtime down (see teardown for the
// order), and returns to Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()
	c.notify()

	c.teardown()

	c.mu.Lock()
	c.state = StateIdle
	c.role = RoleNone
	c.lastErr = ""
	c.reason = ReasonNone
	c.roomCodeStr = ""
	c.players = nil
	c.mcPort = nil
	c.enteredAt = time.Now()
	c.mu.Unlock()
	c.notify()
}

// Retry performs a full teardown-to-Idle from Error; it is not a resume.
func (c *Controller) Retry() {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.teardown()

	c.mu.Lock()
	c.state = StateIdle
	c.role = RoleNone
	c.lastErr = ""
	c.reason = ReasonNone
	c.roomCodeStr = ""
	c.players = nil
	c.mcPort = nil
	c.enteredAt = time.Now()
	c.mu.Unlock()
	c.notify()
}

// teardown cancels the runtime's context, waits for its goroutine to
// return, then releases resources in the order the spec prescribes:
// scaffolding client/server, fake server, overlay child tree.
func (c *Controller) teardown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.scaffCli != nil {
		c.scaffCli.Close()
		c.scaffCli = nil
	}
	if c.scaffSrv != nil {
		c.scaffSrv.Stop()
		c.scaffSrv = nil
	}
	if c.fakeSrv != nil {
		c.fakeSrv.Stop()
		c.fakeSrv = nil
	}
	if c.node != nil {
		c.node.Stop()
		c.node = nil
	}
	c.virtualIP = ""
	c.centerPort = 0
	c.legacyFailures = 0
	c.hostNameCache = ""
}
