package audio

// Device abstracts the audio output so the worker can be tested without
// real hardware. A device is opened once when the player starts; failure at
// that point is permanent for the worker's lifetime.
type Device interface {
	// OpenStream begins a playback session. Samples queued on the
	// returned stream play back-to-back until it is closed.
	OpenStream() (Stream, error)
	Close() error
}

// Stream is one live playback session. The worker queues samples onto it
// while it streams and polls Drained to detect exhaustion.
type Stream interface {
	// Queue appends samples to the end of the live output queue without
	// interrupting what is already playing.
	Queue(samples []float32)

	// Flush drops queued-but-unplayed samples, used when a seek replaces
	// the remainder of the stream.
	Flush()

	// Drained reports that every queued sample has been handed to the
	// device and nothing is left to play.
	Drained() bool

	Close() error
}
