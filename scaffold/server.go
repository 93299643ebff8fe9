package scaffold

import (
	"encoding/json"
	"fmt"
	stdnet "net"
	"strings"
	"sync"
	"time"

	"lanbridge/common/bufpool"
	cnet "lanbridge/common/net"
	"lanbridge/logger"
	"lanbridge/stats"
)

// SupportedKinds is the set of c:* commands this server dispatches, in the
// order reported by c:protocols.
var SupportedKinds = []string{
	"c:ping",
	"c:protocols",
	"c:server_port",
	"c:player_ping",
	"c:player_profiles_list",
}

const (
	// DefaultHeartbeatTimeout is how long a GUEST entry survives without a
	// fresh c:player_ping before the sweep removes it.
	DefaultHeartbeatTimeout = 10 * time.Second
	sweepInterval           = 5 * time.Second
)

type rosterEntry struct {
	profile  PlayerProfile
	lastSeen time.Time
}

// Server runs the Scaffolding rendezvous protocol: it accepts TCP
// connections on a TCP port, serves the five c:* commands, and
// maintains the player roster with heartbeat eviction.
type Server struct {
	log   *logger.Logger
	stats *stats.Stats

	heartbeatTimeout time.Duration

	mu     sync.Mutex
	order  []string // machine_id insertion order, HOST included in its slot
	roster map[string]*rosterEntry
	mcPort *uint16

	listener stdnet.Listener
	addr     stdnet.Addr

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewServer constructs a Server with an empty roster. Call SetHost before
// Serve to seed the immortal HOST entry.
func NewServer(st *stats.Stats) *Server {
	return &Server{
		log:              logger.New("scaffold.server"),
		stats:            st,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		roster:           make(map[string]*rosterEntry),
		stopCh:           make(chan struct{}),
	}
}

// SetHeartbeatTimeout overrides DefaultHeartbeatTimeout; call before Serve.
func (s *Server) SetHeartbeatTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeatTimeout = d
}

// SetHost installs the single immortal HOST entry, replacing any previous
// one. It is never subject to heartbeat eviction or c:player_ping mutation.
func (s *Server) SetHost(name, machineID, vendor string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		if e, ok := s.roster[id]; ok && e.profile.Kind == ProfileHost && id != machineID {
			delete(s.roster, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	if _, exists := s.roster[machineID]; !exists {
		s.order = append(s.order, machineID)
	}
	s.roster[machineID] = &rosterEntry{
		profile: PlayerProfile{
			Name:      name,
			MachineID: machineID,
			Vendor:    vendor,
			Kind:      ProfileHost,
		},
		lastSeen: time.Time{}, // never stale
	}
}

// SetMinecraftPort controls c:server_port's reply. Passing nil makes it
// return the soft-failure status.
func (s *Server) SetMinecraftPort(port *uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mcPort = port
}

// Addr returns the bound listener address. Valid only after Listen has
// succeeded.
func (s *Server) Addr() stdnet.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Listen binds the server to preferredPort, falling back to an OS-assigned
// ephemeral port if preferredPort is already in use.
func (s *Server) Listen(host string, preferredPort uint16) error {
	ln, err := stdnet.Listen("tcp", fmt.Sprintf("%s:%d", host, preferredPort))
	if err != nil {
		s.log.Warnf("preferred port %d unavailable (%v), falling back to an ephemeral port", preferredPort, err)
		ln, err = stdnet.Listen("tcp", fmt.Sprintf("%s:0", host))
		if err != nil {
			return fmt.Errorf("scaffold: listen: %w", err)
		}
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.log.Infof("listening on %s", ln.Addr())
	return nil
}

// Serve accepts connections until Stop is called. It blocks; run it in its
// own goroutine.
func (s *Server) Serve() error {
	s.wg.Add(1)
	go s.sweepLoop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				return fmt.Errorf("scaffold: accept: %w", err)
			}
		}

		if err := cnet.OptimizeTCPConn(conn); err != nil {
			s.log.Debugf("tcp tuning failed for %s: %v", conn.RemoteAddr(), err)
		}

		s.stats.IncrementConnections()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
}

func (s *Server) handleConn(conn stdnet.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.stats.DecrementConnections()

	for {
		req, err := ReadRequest(conn)
		if err != nil {
			return // EOF or malformed frame: connection cannot be resynchronized
		}

		s.stats.RecordRequest(req.Kind)
		resp := s.dispatch(req)

		if err := WriteResponse(conn, resp); err != nil {
			s.log.Debugf("write response to %s: %v", conn.RemoteAddr(), err)
			bufpool.Put(req.Body)
			return
		}

		// resp.Data only ever aliases req.Body for c:ping, and WriteResponse
		// has already copied it onto the wire by this point.
		bufpool.Put(req.Body)
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Kind {
	case "c:ping":
		return Response{Status: StatusOK, Data: req.Body}

	case "c:protocols":
		return Response{Status: StatusOK, Data: []byte(strings.Join(SupportedKinds, "\x00"))}

	case "c:server_port":
		s.mu.Lock()
		port := s.mcPort
		s.mu.Unlock()
		if port == nil {
			return Response{Status: StatusNotReady}
		}
		return Response{Status: StatusOK, Data: []byte{byte(*port >> 8), byte(*port)}}

	case "c:player_ping":
		return s.handlePlayerPing(req.Body)

	case "c:player_profiles_list":
		return s.handleProfilesList()

	default:
		return Response{Status: StatusUnknown}
	}
}

type playerPingBody struct {
	Name       string `json:"name"`
	MachineID  string `json:"machine_id"`
	Vendor     string `json:"vendor"`
	EasyTierID string `json:"easytier_id,omitempty"`
}

func (s *Server) handlePlayerPing(body []byte) Response {
	var p playerPingBody
	if err := json.Unmarshal(body, &p); err != nil {
		return Response{Status: 1, Data: []byte("Malformed player_ping body")}
	}
	if p.MachineID == "" {
		return Response{Status: 1, Data: []byte("Missing machine_id")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.roster[p.MachineID]; ok && existing.profile.Kind == ProfileHost {
		s.stats.IncrementHostRejections()
		return Response{Status: 1, Data: []byte("Cannot modify host profile")}
	}

	entry, isNew := s.roster[p.MachineID]
	if !isNew || entry == nil {
		s.order = append(s.order, p.MachineID)
		entry = &rosterEntry{}
		s.roster[p.MachineID] = entry
	}
	entry.profile = PlayerProfile{
		Name:      p.Name,
		MachineID: p.MachineID,
		Vendor:    p.Vendor,
		Kind:      ProfileGuest,
	}
	entry.lastSeen = time.Now()

	if !isNew {
		s.stats.IncrementGuestJoins()
	}

	return Response{Status: StatusOK}
}

func (s *Server) handleProfilesList() Response {
	s.mu.Lock()
	profiles := make([]PlayerProfile, 0, len(s.order))
	for _, id := range s.order {
		if e, ok := s.roster[id]; ok {
			profiles = append(profiles, e.profile)
		}
	}
	s.mu.Unlock()

	data, err := json.Marshal(profiles)
	if err != nil {
		return Response{Status: 2, Data: []byte(err.Error())}
	}
	return Response{Status: StatusOK, Data: data}
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var survivors []string
	for _, id := range s.order {
		e, ok := s.roster[id]
		if !ok {
			continue
		}
		if e.profile.Kind != ProfileHost && now.Sub(e.lastSeen) > s.heartbeatTimeout {
			delete(s.roster, id)
			s.stats.IncrementHeartbeatEvictions()
			s.log.Infof("evicted stale guest %s (%s)", e.profile.Name, id)
			continue
		}
		survivors = append(survivors, id)
	}
	s.order = survivors
}
