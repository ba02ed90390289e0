package licentra

import (
	"crypto/sha256"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// HWIDEnv overrides GenerateFingerprint when set.
const HWIDEnv = "LICENTRA_HWID"

// GenerateFingerprint produces a deterministic, reboot-safe machine identifier
// suitable as the hwid of a hardware-locked license. It combines hostname,
// MAC addresses, OS, architecture, and machine-id (Linux) into a SHA-256 hex string.
//
// In containers, where MAC addresses and hostnames churn, set LICENTRA_HWID
// to a stable value instead.
func GenerateFingerprint() (string, error) {
	if fp := os.Getenv(HWIDEnv); fp != "" {
		return fp, nil
	}

	var parts []string

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("get hostname: %w", err)
	}
	parts = append(parts, hostname)

	// sorted for determinism, best-effort
	macs, err := getMACAddresses()
	if err == nil && len(macs) > 0 {
		parts = append(parts, macs...)
	}

	parts = append(parts, runtime.GOOS, runtime.GOARCH)

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		parts = append(parts, strings.TrimSpace(string(machineID)))
	}

	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// getMACAddresses returns sorted, non-loopback hardware MAC addresses.
func getMACAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}
