//go:build linux

package monitor

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// platformSampler reads established connections from the kernel TCP tables.
func platformSampler() Sampler {
	return func(_ context.Context) []Activity {
		var activities []Activity
		for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
			activities = append(activities, readConnTable(table)...)
		}
		return activities
	}
}

// readConnTable parses one /proc/net table. Each data line carries the
// remote endpoint as hex "ADDR:PORT" in field 2.
func readConnTable(path string) []Activity {
	data, err := os.ReadFile(path) // #nosec G304 -- fixed kernel table paths
	if err != nil {
		return nil
	}

	var activities []Activity
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		addr, port, err := parseHexEndpoint(fields[2])
		if err != nil || port == 0 {
			continue
		}

		activities = append(activities, Activity{
			Timestamp:  time.Now().UTC(),
			RemoteAddr: addr,
			Port:       port,
		})
	}
	return activities
}

// parseHexEndpoint decodes a kernel table endpoint such as "0100007F:1F90".
func parseHexEndpoint(s string) (string, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed endpoint %q", s)
	}

	raw, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", 0, err
	}

	// Addresses are stored little-endian within each 4-byte group.
	for off := 0; off+4 <= len(raw); off += 4 {
		raw[off], raw[off+3] = raw[off+3], raw[off]
		raw[off+1], raw[off+2] = raw[off+2], raw[off+1]
	}
	ip := net.IP(raw)

	port, err := strconv.ParseInt(parts[1], 16, 32)
	if err != nil {
		return "", 0, err
	}

	return ip.String(), int(port), nil
}
