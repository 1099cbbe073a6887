// Package netutil selects the service's HTTP bind address.
package netutil

import (
	"fmt"
	"log/slog"
	"net"
)

// SelectBindAddr probes preferred with a short-lived listener and returns it
// when bindable. A busy preferred address walks candidates in order when
// autoFallback is set, and is an error otherwise.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		if bindable(preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("bind address %s is busy and fallback is disabled", preferred)
		}
		slog.Warn("preferred bind address busy, trying fallbacks", "addr", preferred)
	}

	for _, addr := range candidates {
		if bindable(addr) {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no bindable address among %d fallbacks", len(candidates))
}

func bindable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
