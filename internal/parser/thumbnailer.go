package parser

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/sqlite"
	"github.com/franz/medialib/internal/util"
)

// Thumbnail output dimensions.
const (
	DesiredWidth  = 320
	DesiredHeight = 200
)

// Decoder deadlines. On expiry the session is closed and the task fails;
// the decoder is never leaked.
const (
	startTimeout    = 3 * time.Second
	videoTrackGrace = 1 * time.Second
	seekSettle      = 3 * time.Second
	frameTimeout    = 15 * time.Second
)

// Thumbnailer is the last service: it probes the media with the decoder,
// grabs one representative frame and writes <thumbnailDir>/<mediaId>.<ext>.
// Runs single-threaded: decoding two files at once buys nothing on the
// machines this targets.
type Thumbnailer struct {
	cat          *catalog.Catalog
	decoder      Decoder
	compressor   ImageCompressor
	res          PathResolver
	thumbnailDir string
}

// NewThumbnailer builds the last chain stage.
func NewThumbnailer(decoder Decoder, compressor ImageCompressor, res PathResolver, thumbnailDir string) *Thumbnailer {
	return &Thumbnailer{
		decoder:      decoder,
		compressor:   compressor,
		res:          res,
		thumbnailDir: thumbnailDir,
	}
}

func (s *Thumbnailer) Name() string { return "thumbnailer" }

func (s *Thumbnailer) NbThreads() int { return 1 }

func (s *Thumbnailer) Step() catalog.Step { return catalog.StepThumbnail }

func (s *Thumbnailer) Initialize(cat *catalog.Catalog) bool {
	s.cat = cat
	return s.decoder != nil && s.compressor != nil
}

func (s *Thumbnailer) IsCompleted(t *catalog.Task) bool {
	return t.HasStep(catalog.StepThumbnail)
}

// Run drives one probe session through the bounded deadlines.
func (s *Thumbnailer) Run(t *catalog.Task) Status {
	media := t.Media
	if media == nil && t.FileID.Valid {
		var err error
		media, err = s.cat.MediaByFileID(t.FileID.Int64)
		if err != nil {
			return StatusError
		}
	}
	if media == nil {
		return StatusDiscarded
	}
	if media.Thumbnail != "" {
		// a leftover thumbnail on an Unknown media means a previous probe
		// saw video; flip the type and complete the step. The analysis
		// step is not run again for this media.
		if media.Type == catalog.MediaTypeUnknown {
			media.Type = catalog.MediaTypeVideo
			if err := s.cat.SaveMedia(nil, media); err != nil {
				return StatusError
			}
		}
		return StatusSuccess
	}

	path, err := s.res.AbsolutePath(t)
	if err != nil {
		return StatusDiscarded
	}

	opts := OpenOptions{
		NoAudio:         true,
		NoOSD:           true,
		NoSubtitles:     true,
		FastSeek:        true,
		DisableHwDecode: true,
	}
	if media.Type != catalog.MediaTypeAudio && media.Duration > 0 {
		opts.StartPosition = 0.25
	}

	sess, err := s.decoder.Open(path, opts)
	if err != nil {
		util.WarnLog("thumbnailer: failed to open %s: %v", path, err)
		return StatusError
	}
	defer sess.Close()

	status := s.probe(t, media, sess)

	// the file may have been reaped while we were decoding; committing a
	// thumbnail for a deleted media would resurrect nothing useful
	if status == StatusSuccess {
		exists, err := s.cat.MediaExists(media.ID)
		if err != nil || !exists {
			return StatusFatal
		}
	}
	return status
}

func (s *Thumbnailer) probe(t *catalog.Task, media *catalog.Media, sess Session) Status {
	// wait for any track or an error
	var firstTrack *TrackEvent
	start := time.NewTimer(startTimeout)
	defer start.Stop()
	select {
	case ev, ok := <-sess.Tracks():
		if !ok {
			return StatusError
		}
		firstTrack = &ev
	case err := <-sess.Errors():
		util.WarnLog("thumbnailer: playback error: %v", err)
		return StatusError
	case <-start.C:
		return StatusError
	}

	// give a video track a short grace period after the first track
	videoTrack := firstTrack
	if !videoTrack.Video {
		videoTrack = nil
		grace := time.NewTimer(videoTrackGrace)
		defer grace.Stop()
	graceLoop:
		for {
			select {
			case ev, ok := <-sess.Tracks():
				if !ok {
					break graceLoop
				}
				if ev.Video {
					videoTrack = &ev
					break graceLoop
				}
			case <-grace.C:
				break graceLoop
			}
		}
	}

	if videoTrack == nil {
		return s.finishAudioOnly(t, media, sess)
	}
	return s.grabFrame(t, media, sess, videoTrack)
}

// finishAudioOnly handles media the decoder found no picture in: embedded
// artwork for audio, reclassification for Unknown.
func (s *Thumbnailer) finishAudioOnly(t *catalog.Task, media *catalog.Media, sess Session) Status {
	reclassified := false
	if media.Type == catalog.MediaTypeUnknown {
		media.Type = catalog.MediaTypeAudio
		reclassified = true
	}
	if media.Type != catalog.MediaTypeAudio && !reclassified {
		// a video media without a video track cannot be thumbnailed
		return StatusFatal
	}

	thumbPath := ""
	if art, ok := sess.Artwork(); ok {
		thumbPath = filepath.Join(s.thumbnailDir, fmt.Sprintf("%d.jpg", media.ID))
		if err := WriteArtwork(art, thumbPath); err != nil {
			util.WarnLog("thumbnailer: %v", err)
			thumbPath = ""
		}
	}

	return s.commit(t, media, thumbPath)
}

// grabFrame runs the video path: settle the position, size the output,
// wait for one displayed frame, crop and compress.
func (s *Thumbnailer) grabFrame(t *catalog.Task, media *catalog.Media, sess Session, track *TrackEvent) Status {
	if sess.Duration() <= 0 {
		if err := sess.Seek(0.4); err == nil {
			deadline := time.Now().Add(seekSettle)
			for sess.Position() < 0.1 && time.Now().Before(deadline) {
				time.Sleep(50 * time.Millisecond)
			}
		}
	}

	width, height := outputSize(track.Width, track.Height)
	frames := sess.SetupVideo(width, height)

	frameTimer := time.NewTimer(frameTimeout)
	defer frameTimer.Stop()
	var frame Frame
	select {
	case f, ok := <-frames:
		if !ok {
			return StatusFatal
		}
		frame = f
	case err := <-sess.Errors():
		util.WarnLog("thumbnailer: playback error while waiting for frame: %v", err)
		return StatusFatal
	case <-frameTimer.C:
		return StatusFatal
	}

	if media.Type == catalog.MediaTypeUnknown {
		media.Type = catalog.MediaTypeVideo
	}

	thumbPath := filepath.Join(s.thumbnailDir,
		fmt.Sprintf("%d.%s", media.ID, s.compressor.Extension()))
	if err := s.compressor.Compress(frame, thumbPath, DesiredWidth, DesiredHeight); err != nil {
		util.ErrorLog("thumbnailer: %v", err)
		return StatusFatal
	}

	return s.commit(t, media, thumbPath)
}

// outputSize picks the decoder output dimensions: target the desired
// width, keep the source aspect, and never come out shorter than the
// desired height.
func outputSize(srcW, srcH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return DesiredWidth, DesiredHeight
	}
	w := DesiredWidth
	h := w*srcH/srcW + 1
	if h < DesiredHeight {
		h = DesiredHeight
		w = h*srcW/srcH + 1
	}
	return w, h
}

// commit saves the media (type and thumbnail) and the task step in one
// transaction.
func (s *Thumbnailer) commit(t *catalog.Task, media *catalog.Media, thumbPath string) Status {
	media.Thumbnail = thumbPath
	t.MarkStep(catalog.StepThumbnail)
	err := s.cat.Conn().Transaction(func(tx *sqlite.Tx) error {
		if err := s.cat.SaveMedia(tx, media); err != nil {
			return err
		}
		return s.cat.SaveTaskStep(tx, t)
	})
	if err != nil {
		util.ErrorLog("thumbnailer: failed to commit task %d: %v", t.ID, err)
		return StatusError
	}
	t.Media = media
	return StatusSuccess
}
