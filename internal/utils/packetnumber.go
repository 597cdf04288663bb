package utils

import "quiccore/internal/protocol"

// TruncatePacketNumber returns the low 8*length bits of pn, the
// representation the wire carries (spec.md §4.2). length must be 1, 2 or 4.
func TruncatePacketNumber(pn protocol.PacketNumber, length int) uint32 {
	window := uint64(1) << (8 * uint(length))
	return uint32(uint64(pn) & (window - 1))
}

// DecodePacketNumber reconstructs a full 64-bit packet number from a
// truncated value of the given byte length, centering the result on the
// expected next packet number (highestReceived+1), per spec.md §4.2.
//
// Deterministic; it has no failure mode.
const maxPacketNumber = (uint64(1) << 62) - 1

func DecodePacketNumber(expected protocol.PacketNumber, truncated uint32, length int) protocol.PacketNumber {
	bits := uint(8 * length)
	window := uint64(1) << bits
	half := window / 2

	e := uint64(expected)
	candidate := (e &^ (window - 1)) | uint64(truncated)

	switch {
	case candidate <= e-half && candidate < maxPacketNumber-window && e >= half:
		candidate += window
	case candidate > e+half && candidate >= window:
		candidate -= window
	}
	return protocol.PacketNumber(candidate)
}
