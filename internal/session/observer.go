package session

// Observer receives UI/telemetry notifications from a session. Delivery is
// fire-and-forget: observers run on their own goroutine and panics are
// swallowed, so a broken observer can never stall turn-taking.
type Observer interface {
	// OnInterimTranscript is called with the current accumulated text each
	// time a transcript fragment arrives while listening
	OnInterimTranscript(text string)

	// OnTurnComplete is called once per completed turn with the final user
	// text and the avatar's response
	OnTurnComplete(userText, response string)

	// OnBargeIn is called when the user interrupts avatar playback
	OnBargeIn()

	// OnAvatarDone is called when avatar playback finishes uninterrupted
	OnAvatarDone()
}
