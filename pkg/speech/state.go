package speech

// State of a speak session
type State int32

const (
	StateIdle State = iota
	// StateSpeaking waits for audio of the next section
	StateSpeaking
	StatePlaying
	StatePaused
	// StatePlayingFromCache replays sections synthesized earlier
	StatePlayingFromCache
	// StateStopped is final for a session stopped by the user
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StatePlayingFromCache:
		return "playing-from-cache"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a session in this state still owns the player
func (s State) Active() bool {
	return s != StateIdle && s != StateStopped
}
