package session

// State is the authoritative turn-taking state of one session. Exactly one
// value holds at any instant; events arriving in a state with no matching
// edge are ignored.
type State int

const (
	// StateIdle: nobody is speaking, waiting for the user to start.
	StateIdle State = iota
	// StateListening: the user is speaking, audio flows to transcription.
	StateListening
	// StateProcessing: the user stopped, a response is being obtained.
	StateProcessing
	// StateAvatarSpeaking: the response is playing back.
	StateAvatarSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateAvatarSpeaking:
		return "avatar_speaking"
	default:
		return "unknown"
	}
}
