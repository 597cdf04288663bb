// Package quic is the module root for the QUIC endpoint core: the
// send-side packet pipeline and receive-side reassembly pipeline between
// an upper streams layer and a UDP datapath.
//
// The implementation lives under internal/, package per component:
//
//	internal/protocol    encryption levels, packet types, perspective, sizes
//	internal/qerr         error kinds
//	internal/utils        varint codec, packet-number codec, logging, generics
//	internal/rangeset      Range Tracker
//	internal/ackhandler     per-space packet-number state, ACK tracker
//	internal/handshake      transport-parameter and resumption-ticket codecs
//	internal/congestion     Cubic+HyStart++ and BBR controllers
//	internal/recvbuffer     receive buffer, all four delivery modes
//	internal/builder        Packet Builder
//
// No package is exported from the module root: every caller outside this
// module is expected to be the surrounding connection/streams layer,
// which is out of scope here (see DESIGN.md and SPEC_FULL.md).
package quic
