package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/medialib/internal/catalog"
)

type fakeResolver struct {
	path string
	err  error
}

func (r fakeResolver) AbsolutePath(*catalog.Task) (string, error) {
	return r.path, r.err
}

// fakeSession scripts one decoder probe.
type fakeSession struct {
	tracks   chan TrackEvent
	errs     chan error
	frames   chan Frame
	setup    chan struct{}
	duration time.Duration
	artwork  []byte
	closed   bool
	videoW   int
	videoH   int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		tracks: make(chan TrackEvent, 4),
		errs:   make(chan error, 1),
		frames: make(chan Frame, 1),
		setup:  make(chan struct{}),
	}
}

func (s *fakeSession) Tracks() <-chan TrackEvent { return s.tracks }
func (s *fakeSession) Errors() <-chan error      { return s.errs }
func (s *fakeSession) Duration() time.Duration   { return s.duration }
func (s *fakeSession) Seek(float64) error        { return nil }
func (s *fakeSession) Position() float64         { return 0.4 }

func (s *fakeSession) SetupVideo(w, h int) <-chan Frame {
	s.videoW, s.videoH = w, h
	close(s.setup)
	return s.frames
}

func (s *fakeSession) Artwork() ([]byte, bool) {
	return s.artwork, s.artwork != nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDecoder struct {
	session *fakeSession
	err     error
}

func (d *fakeDecoder) Open(path string, opts OpenOptions) (Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func thumbTask(t *testing.T, cat *catalog.Catalog, typ catalog.MediaType) (*catalog.Task, *catalog.Media) {
	t.Helper()
	dev, err := cat.CreateDevice("u", "file", false)
	if err != nil {
		t.Fatal(err)
	}
	folder, err := cat.CreateFolder("/m", 0, dev.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	media, err := cat.CreateMedia(typ, "clip", "clip.bin")
	if err != nil {
		t.Fatal(err)
	}
	file, err := cat.AddFile(media.ID, folder.ID, "file:///m/clip.bin", catalog.FileTypeMain, 1, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	task, err := cat.CreateTask("file:///m/clip.bin", file.ID, folder.ID)
	if err != nil {
		t.Fatal(err)
	}
	task.Media = media
	task.MarkStep(catalog.StepMetadataExtraction | catalog.StepMetadataAnalysis)
	if err := cat.SaveTaskStep(nil, task); err != nil {
		t.Fatal(err)
	}
	return task, media
}

func newThumbnailer(t *testing.T, cat *catalog.Catalog, dec Decoder) (*Thumbnailer, string) {
	t.Helper()
	dir := t.TempDir()
	th := NewThumbnailer(dec, NewJpegCompressor(), fakeResolver{path: "/m/clip.bin"}, dir)
	if !th.Initialize(cat) {
		t.Fatal("thumbnailer failed to initialize")
	}
	return th, dir
}

func TestThumbnailerReclassifiesUnknownAsAudio(t *testing.T) {
	cat := openTestCatalog(t)
	task, media := thumbTask(t, cat, catalog.MediaTypeUnknown)

	sess := newFakeSession()
	sess.tracks <- TrackEvent{Video: false}
	th, dir := newThumbnailer(t, cat, &fakeDecoder{session: sess})

	if status := th.Run(task); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	cat.ClearCaches()
	saved, err := cat.MediaByID(media.ID)
	if err != nil || saved == nil {
		t.Fatal(err)
	}
	if saved.Type != catalog.MediaTypeAudio {
		t.Errorf("expected reclassification to audio, got %v", saved.Type)
	}
	if saved.Thumbnail != "" {
		t.Errorf("no artwork was available, thumbnail should be empty: %q", saved.Thumbnail)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("no image file should be written, found %d", len(entries))
	}

	restored, err := cat.TaskByID(task.ID)
	if err != nil || restored == nil {
		t.Fatal(err)
	}
	if !restored.HasStep(catalog.StepThumbnail) {
		t.Error("thumbnail step not persisted")
	}
	if !sess.closed {
		t.Error("decoder session leaked")
	}
}

func TestThumbnailerWritesAudioArtwork(t *testing.T) {
	cat := openTestCatalog(t)
	task, media := thumbTask(t, cat, catalog.MediaTypeAudio)

	sess := newFakeSession()
	sess.tracks <- TrackEvent{Video: false}
	sess.artwork = []byte{0xff, 0xd8, 0xff, 0xe0}
	th, dir := newThumbnailer(t, cat, &fakeDecoder{session: sess})

	if status := th.Run(task); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	want := filepath.Join(dir, "1.jpg")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("artwork file missing: %v", err)
	}

	cat.ClearCaches()
	saved, _ := cat.MediaByID(media.ID)
	if saved.Thumbnail != want {
		t.Errorf("thumbnail path not saved: %q", saved.Thumbnail)
	}
}

func TestThumbnailerGrabsVideoFrame(t *testing.T) {
	cat := openTestCatalog(t)
	task, media := thumbTask(t, cat, catalog.MediaTypeVideo)

	sess := newFakeSession()
	sess.duration = 2 * time.Minute
	sess.tracks <- TrackEvent{Video: true, Width: 1280, Height: 720}

	// the fake decoder delivers one frame at whatever size was requested
	go func() {
		<-sess.setup
		rgb := make([]byte, sess.videoW*sess.videoH*3)
		for i := range rgb {
			rgb[i] = byte(i)
		}
		sess.frames <- Frame{RGB: rgb, Width: sess.videoW, Height: sess.videoH}
	}()

	th, dir := newThumbnailer(t, cat, &fakeDecoder{session: sess})
	if status := th.Run(task); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	if sess.videoW < DesiredWidth {
		t.Errorf("output width %d narrower than desired %d", sess.videoW, DesiredWidth)
	}
	if sess.videoH < DesiredHeight {
		t.Errorf("output height %d shorter than desired %d", sess.videoH, DesiredHeight)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one thumbnail file, got %d (%v)", len(entries), err)
	}

	cat.ClearCaches()
	saved, _ := cat.MediaByID(media.ID)
	if saved.Thumbnail == "" {
		t.Error("thumbnail path not saved on media")
	}
}

func TestThumbnailerTimesOutWithoutTracks(t *testing.T) {
	cat := openTestCatalog(t)
	task, _ := thumbTask(t, cat, catalog.MediaTypeVideo)

	sess := newFakeSession() // never delivers anything
	th, _ := newThumbnailer(t, cat, &fakeDecoder{session: sess})

	start := time.Now()
	status := th.Run(task)
	if status != StatusError {
		t.Errorf("start timeout should be a retryable error, got %v", status)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
	if !sess.closed {
		t.Error("decoder session leaked on timeout")
	}
}

func TestThumbnailerOpenFailureIsRetryable(t *testing.T) {
	cat := openTestCatalog(t)
	task, _ := thumbTask(t, cat, catalog.MediaTypeVideo)

	th, _ := newThumbnailer(t, cat, &fakeDecoder{err: errors.New("no decoder")})
	if status := th.Run(task); status != StatusError {
		t.Errorf("open failure should be retryable, got %v", status)
	}
}

func TestOutputSize(t *testing.T) {
	cases := []struct {
		srcW, srcH int
		wantW      int
		minH       int
	}{
		{1280, 720, DesiredWidth, DesiredHeight - 20},
		{1920, 800, DesiredWidth, DesiredHeight},
		{0, 0, DesiredWidth, DesiredHeight},
	}
	for _, c := range cases {
		w, h := outputSize(c.srcW, c.srcH)
		if w < DesiredWidth || h < c.minH {
			t.Errorf("outputSize(%d, %d) = (%d, %d)", c.srcW, c.srcH, w, h)
		}
	}
}
