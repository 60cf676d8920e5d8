package sip

import (
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync/atomic"
)

// Signalling networks of the trunk provider. INVITEs from anywhere else
// are rejected before a call is created.
var providerNetworks = []string{
	"217.10.0.0/16",
	"212.9.32.0/19",
	"95.174.128.0/20",
	"2001:ab7::/32",
}

var privateNetworks = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
}

// TrunkFirewall filters inbound SIP signalling by source address. The
// allow-list is static; the enabled flag can be toggled at runtime from
// the dashboard.
type TrunkFirewall struct {
	enabled  atomic.Bool
	allowed  []netip.Prefix
	private  []netip.Prefix
	trunkIDs []string // caller URI substrings that legitimize private sources
	logger   *slog.Logger
}

// NewTrunkFirewall builds the firewall. trunkIdentities are the configured
// trunk username and provider host; a request from a private address is
// accepted when its From URI carries one of them, which covers local
// testing behind NAT.
func NewTrunkFirewall(enabled bool, trunkIdentities []string, logger *slog.Logger) *TrunkFirewall {
	f := &TrunkFirewall{
		allowed: parsePrefixes(providerNetworks),
		private: parsePrefixes(privateNetworks),
		logger:  logger.With("subsystem", "firewall"),
	}
	for _, id := range trunkIdentities {
		if id != "" {
			f.trunkIDs = append(f.trunkIDs, strings.ToLower(id))
		}
	}
	f.enabled.Store(enabled)
	return f
}

// Enabled reports whether filtering is active.
func (f *TrunkFirewall) Enabled() bool {
	return f.enabled.Load()
}

// SetEnabled toggles filtering at runtime.
func (f *TrunkFirewall) SetEnabled(on bool) {
	f.enabled.Store(on)
	f.logger.Info("firewall toggled", "enabled", on)
}

// Networks returns the configured provider networks.
func (f *TrunkFirewall) Networks() []string {
	out := make([]string, len(providerNetworks))
	copy(out, providerNetworks)
	return out
}

// Allow decides whether an INVITE from the given source may proceed.
// source is "ip:port" as reported by the SIP stack; fromURI is the raw
// From header value.
func (f *TrunkFirewall) Allow(source, fromURI string) bool {
	if !f.enabled.Load() {
		return true
	}

	addr, err := parseSourceAddr(source)
	if err != nil {
		f.logger.Warn("unparseable source address", "source", source, "error", err)
		return false
	}

	for _, p := range f.allowed {
		if p.Contains(addr) {
			return true
		}
	}

	// Private sources pass only when the caller URI names the trunk, so a
	// local softphone used for testing can still get through.
	for _, p := range f.private {
		if p.Contains(addr) {
			lower := strings.ToLower(fromURI)
			for _, id := range f.trunkIDs {
				if strings.Contains(lower, id) {
					return true
				}
			}
			f.logger.Warn("private source without trunk identity", "source", source)
			return false
		}
	}

	f.logger.Warn("source outside provider networks", "source", source)
	return false
}

func parsePrefixes(cidrs []string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		if p, err := netip.ParsePrefix(c); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// parseSourceAddr handles both "ip:port" and bare "ip".
func parseSourceAddr(source string) (netip.Addr, error) {
	if host, _, err := net.SplitHostPort(source); err == nil {
		return netip.ParseAddr(host)
	}
	return netip.ParseAddr(source)
}
