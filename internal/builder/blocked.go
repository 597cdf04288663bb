package builder

// BlockedReason is one bit of the send-blocked reason set spec.md §4.11
// describes.
type BlockedReason uint16

const (
	BlockedScheduling BlockedReason = 1 << iota
	BlockedPacing
	BlockedAmplificationProt
	BlockedCongestionControl
	BlockedConnFlowControl
	BlockedStreamIDFlowControl
	BlockedStreamFlowControl
	BlockedApp
)

// BlockedFlags is the bitmask of BlockedReason bits currently observed,
// per spec.md §4.11: bits are set when a blocker is observed and cleared
// when the corresponding condition resolves.
type BlockedFlags uint16

// Set raises the given reason's bit.
func (f *BlockedFlags) Set(r BlockedReason) { *f |= BlockedFlags(r) }

// Clear lowers the given reason's bit.
func (f *BlockedFlags) Clear(r BlockedReason) { *f &^= BlockedFlags(r) }

// Has reports whether the given reason's bit is set.
func (f BlockedFlags) Has(r BlockedReason) bool { return f&BlockedFlags(r) != 0 }

// None reports whether no blocker is currently observed.
func (f BlockedFlags) None() bool { return f == 0 }
