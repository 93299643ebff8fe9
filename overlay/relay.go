package overlay

import (
	stdnet "net"
	"time"

	"lanbridge/logger"
)

var relayLog = logger.New("overlay.relay")

// ValidateRelays resolves each "host:port" in urls and, if probeTimeout is
// positive, attempts a TCP connection to confirm reachability. Relays that
// fail DNS resolution are dropped; relays that fail the optional TCP probe
// are still dropped (a relay that can't be reached is useless to offer the
// overlay child). The order of the input is preserved.
func ValidateRelays(urls []string, probeTimeout time.Duration) []string {
	var valid []string

	for _, u := range urls {
		host, _, err := stdnet.SplitHostPort(u)
		if err != nil {
			relayLog.Warnf("relay %q: invalid host:port: %v", u, err)
			continue
		}

		if _, err := stdnet.LookupHost(host); err != nil {
			relayLog.Warnf("relay %q: DNS resolution failed: %v", u, err)
			continue
		}

		if probeTimeout > 0 {
			conn, err := stdnet.DialTimeout("tcp", u, probeTimeout)
			if err != nil {
				relayLog.Warnf("relay %q: TCP probe failed: %v", u, err)
				continue
			}
			conn.Close()
		}

		valid = append(valid, u)
	}

	return valid
}
