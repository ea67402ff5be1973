package wifi

import (
	"bytes"
	"sort"
)

// SortNetworks orders a scan result set signal-descending, ties broken by
// ascending SSID bytes, the way wifi.SortConnections orders a connection
// list by strength with an SSID fallback.
func SortNetworks(networks []Network) {
	sort.SliceStable(networks, func(i, j int) bool {
		a, b := networks[i], networks[j]
		if a.SignalDBM != b.SignalDBM {
			return a.SignalDBM > b.SignalDBM
		}
		return bytes.Compare(a.SSID, b.SSID) < 0
	})
}

// DedupByBSSID collapses networks sharing a known BSSID, keeping the
// strongest signal for each. Networks without a BSSID pass through
// unchanged. The result is not sorted; call SortNetworks afterward.
func DedupByBSSID(networks []Network) []Network {
	best := make(map[string]int, len(networks))
	out := make([]Network, 0, len(networks))
	for _, n := range networks {
		if len(n.BSSID) == 0 {
			out = append(out, n)
			continue
		}
		key := string(n.BSSID)
		if idx, ok := best[key]; ok {
			if n.SignalDBM > out[idx].SignalDBM {
				out[idx] = n
			}
			continue
		}
		best[key] = len(out)
		out = append(out, n)
	}
	return out
}

// Equal reports whether two networks identify the same access point per
// the data-model equality rule: by BSSID when both have one, else by
// (SSID, Security).
func (n Network) Equal(other Network) bool {
	if len(n.BSSID) > 0 && len(other.BSSID) > 0 {
		return bytes.Equal(n.BSSID, other.BSSID)
	}
	return bytes.Equal(n.SSID, other.SSID) && n.Security == other.Security
}
