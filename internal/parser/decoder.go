package parser

import "time"

// The decoder is an external collaborator: the embedding host provides an
// implementation wrapping whatever media framework it links. Only the
// contract the thumbnailer depends on is specified here.

// OpenOptions tune a probe session for thumbnailing: no sound, no
// on-screen display, no subtitle rendering, cheap seeks, software
// decoding.
type OpenOptions struct {
	NoAudio         bool
	NoOSD           bool
	NoSubtitles     bool
	FastSeek        bool
	DisableHwDecode bool
	// StartPosition is a fraction of duration to seek to before playback
	// begins; ignored when unknown duration.
	StartPosition float64
}

// TrackEvent reports one elementary stream discovered during playback.
// Width/Height are set for video tracks.
type TrackEvent struct {
	Video  bool
	Width  int
	Height int
}

// Frame is one decoded picture in packed RGB.
type Frame struct {
	RGB    []byte
	Width  int
	Height int
}

// Session is one playback probe. All channels are closed when the session
// ends or errors out.
type Session interface {
	// Tracks delivers track-discovered events.
	Tracks() <-chan TrackEvent
	// Errors delivers fatal playback errors.
	Errors() <-chan error
	// Duration is known once playback started; <= 0 means unknown.
	Duration() time.Duration
	// Seek jumps to a fraction of the duration.
	Seek(position float64) error
	// Position is the current playback position as a fraction.
	Position() float64
	// SetupVideo configures a video output of the given dimensions and
	// returns the frame channel. The decoder scales into a single
	// reusable buffer.
	SetupVideo(width, height int) <-chan Frame
	// Artwork returns embedded artwork bytes for audio-only media.
	Artwork() ([]byte, bool)
	// Close stops playback and releases the decoder. Always safe to call.
	Close() error
}

// Decoder opens probe sessions.
type Decoder interface {
	Open(path string, opts OpenOptions) (Session, error)
}
