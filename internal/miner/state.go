package miner

// State is the miner's position in its Idle → Searching → Sealed cycle.
type State int32

const (
	Idle State = iota
	Searching
	Sealed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Sealed:
		return "sealed"
	default:
		return "unknown"
	}
}
