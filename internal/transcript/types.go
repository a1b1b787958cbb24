package transcript

// Event is one transcription result from the streaming service. Interim
// events carry provisional text that may still change; final events are
// stable and safe to accumulate.
type Event struct {
	Text    string
	IsFinal bool
}

// Forwarder streams raw PCM audio to an external transcription service and
// emits transcript events as they arrive.
type Forwarder interface {
	// Start opens the streaming connection
	Start() error

	// SendAudio forwards raw PCM bytes verbatim to the service
	SendAudio(pcm []byte) error

	// Events returns the channel of transcript events
	Events() <-chan Event

	// Stop ends the streaming session
	Stop() error

	// Close releases the connection and stops reconnection attempts
	Close() error
}
