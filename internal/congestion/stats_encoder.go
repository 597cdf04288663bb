package congestion

import "github.com/francoispqt/gojay"

// MarshalJSONObject implements gojay.MarshalerJSONObject so
// NetworkStatistics can be written straight to the observability surface
// spec.md §4.11 keeps in scope (send-blocked-flag diagnostics travel
// alongside a congestion snapshot) without reflection-based encoding.
func (n *NetworkStatistics) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Int64Key("congestion_window", int64(n.CongestionWindow))
	enc.Int64Key("bytes_in_flight", int64(n.BytesInFlight))
	enc.Int64Key("slow_start_threshold", int64(n.SlowStartThreshold))
	enc.Int64Key("min_rtt_us", n.MinRTT.Microseconds())
	enc.Int64Key("smoothed_rtt_us", n.SmoothedRTT.Microseconds())
	enc.Uint64Key("bandwidth_estimate_bps", n.BandwidthEstimate)
	enc.BoolKey("in_slow_start", n.InSlowStart)
	enc.BoolKey("in_recovery", n.InRecovery)
	enc.BoolKey("app_limited", n.AppLimited)
}

// IsNil implements gojay.MarshalerJSONObject.
func (n *NetworkStatistics) IsNil() bool { return n == nil }

// Encode returns the JSON encoding of the statistics snapshot.
func (n *NetworkStatistics) Encode() ([]byte, error) {
	return gojay.MarshalJSONObject(n)
}
