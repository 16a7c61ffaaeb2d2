// Package audio defines the playback handle contract and a
// clock-driven implementation of it.
//
// Codec and device work stays behind the Handle interface; the engine
// only ever measures and steers positions.
package audio

// Opener opens one audio resource for playback.
type Opener interface {
	Open(path string) (Handle, error)
}

// Handle is an open audio resource. Implementations are safe for
// concurrent use; the playback engine serializes its own calls anyway.
type Handle interface {
	Play()
	Pause()
	SetRate(rate float64)
	SetVolume(v float64)
	// Seek moves the play head to an absolute time within the file.
	Seek(seconds float64)
	// Position returns the current play head in seconds.
	Position() float64
	// Duration returns the resource length in seconds, 0 if unknown.
	Duration() float64
	Close() error
}
