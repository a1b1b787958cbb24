package avatar

import "context"

// Speaker drives the external speech/avatar playback channel. Playback is
// asynchronous: Speak returns once dispatch is accepted, and the service
// later reports completion through the playback-finished callback.
type Speaker interface {
	// Speak dispatches synthesis/playback of text
	Speak(ctx context.Context, text string) error

	// Interrupt requests that current playback stop immediately
	Interrupt(ctx context.Context) error

	// OnPlaybackFinished registers the callback invoked when the service
	// reports that playback completed
	OnPlaybackFinished(fn func())

	// Close releases the event connection
	Close() error
}
