package parser

import (
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// PathResolver turns a task's stored MRL back into an absolute path using
// the devices' current mountpoints. The facade provides one.
type PathResolver interface {
	AbsolutePath(t *catalog.Task) (string, error)
}

var audioExtensions = map[string]bool{
	"a52": true, "aac": true, "ac3": true, "aif": true, "aifc": true,
	"aiff": true, "alac": true, "amr": true, "ape": true, "dts": true,
	"flac": true, "it": true, "m4a": true, "m4b": true, "m4p": true,
	"mid": true, "mka": true, "mlp": true, "mod": true, "mp1": true,
	"mp2": true, "mp3": true, "mpc": true, "oga": true, "ogg": true,
	"oma": true, "opus": true, "s3m": true, "spx": true, "tta": true,
	"voc": true, "vqf": true, "w64": true, "wav": true, "wma": true,
	"wv": true, "xa": true, "xm": true,
}

// Containers that can only hold video. Ambiguous containers (mp4, webm,
// ts...) stay Unknown until the thumbnailer sees actual tracks.
var videoExtensions = map[string]bool{
	"3gp": true, "amv": true, "avi": true, "divx": true, "dv": true,
	"flv": true, "gxf": true, "ifo": true, "m1v": true, "m2v": true,
	"m4v": true, "mkv": true, "mov": true, "mpeg": true, "mpeg1": true,
	"mpeg2": true, "mpeg4": true, "mpg": true, "mxf": true, "nsv": true,
	"nuv": true, "ogv": true, "rec": true, "rmvb": true, "tod": true,
	"trp": true, "vob": true, "vro": true, "wmv": true,
}

// MetadataExtractor is the first service: it creates the media row for a
// file, reads container tags and fills the task's in-memory metadata.
type MetadataExtractor struct {
	cat *catalog.Catalog
	fs  *vfs.FS
	res PathResolver
}

// NewMetadataExtractor builds the first chain stage.
func NewMetadataExtractor(fs *vfs.FS, res PathResolver) *MetadataExtractor {
	return &MetadataExtractor{fs: fs, res: res}
}

func (s *MetadataExtractor) Name() string { return "metadata" }

func (s *MetadataExtractor) NbThreads() int { return 2 }

func (s *MetadataExtractor) Step() catalog.Step { return catalog.StepMetadataExtraction }

func (s *MetadataExtractor) Initialize(cat *catalog.Catalog) bool {
	s.cat = cat
	return true
}

func (s *MetadataExtractor) IsCompleted(t *catalog.Task) bool {
	return t.HasStep(catalog.StepMetadataExtraction)
}

// Run resolves the file, materializes its media row and extracts tags.
func (s *MetadataExtractor) Run(t *catalog.Task) Status {
	path, err := s.res.AbsolutePath(t)
	if err != nil {
		util.WarnLog("task %d: cannot resolve %s: %v", t.ID, t.MRL, err)
		return StatusDiscarded
	}
	if !s.fs.Exists(path) {
		return StatusDiscarded
	}
	if !t.FileID.Valid {
		return StatusDiscarded
	}
	file, err := s.cat.FileByID(t.FileID.Int64)
	if err != nil {
		util.ErrorLog("task %d: %v", t.ID, err)
		return StatusError
	}
	if file == nil {
		return StatusDiscarded
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	isAudio := audioExtensions[ext]

	meta := &catalog.TaskMetadata{IsAudio: isAudio}
	s.readTags(path, meta)

	title := meta.Title
	if title == "" {
		title = filepath.Base(path)
	}

	media := t.Media
	if media == nil && file.MediaID.Valid {
		media, err = s.cat.MediaByID(file.MediaID.Int64)
		if err != nil {
			return StatusError
		}
	}
	if media == nil {
		typ := catalog.MediaTypeUnknown
		switch {
		case isAudio:
			typ = catalog.MediaTypeAudio
		case videoExtensions[ext]:
			typ = catalog.MediaTypeVideo
		}
		media, err = s.cat.CreateMedia(typ, title, filepath.Base(path))
		if err != nil {
			return StatusError
		}
		if err := s.cat.SetFileMedia(file.ID, media.ID); err != nil {
			return StatusError
		}
		// record what the container itself declares; the decoder refines
		// this during thumbnailing
		switch typ {
		case catalog.MediaTypeAudio:
			if err := s.cat.AddAudioTrack(media.ID, ext, 0, 0, 0, "", ""); err != nil {
				util.WarnLog("task %d: %v", t.ID, err)
			}
		case catalog.MediaTypeVideo:
			if err := s.cat.AddVideoTrack(media.ID, ext, 0, 0, 0, "", ""); err != nil {
				util.WarnLog("task %d: %v", t.ID, err)
			}
		}
	} else if media.Title == "" {
		media.Title = title
		if err := s.cat.SaveMedia(nil, media); err != nil {
			return StatusError
		}
	}

	if meta.Duration > 0 && media.Duration <= 0 {
		media.Duration = meta.Duration
		if err := s.cat.SaveMedia(nil, media); err != nil {
			return StatusError
		}
	}

	t.Media = media
	t.Meta = meta
	return StatusSuccess
}

// readTags pulls whatever the container declares; a file without tags is
// not an error.
func (s *MetadataExtractor) readTags(path string, meta *catalog.TaskMetadata) {
	f, err := s.fs.Open(path)
	if err != nil {
		util.DebugLog("cannot open %s for tags: %v", path, err)
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		util.DebugLog("no readable tags in %s: %v", path, err)
		return
	}

	meta.Title = strings.TrimSpace(m.Title())
	meta.Artist = strings.TrimSpace(m.Artist())
	meta.AlbumArtist = strings.TrimSpace(m.AlbumArtist())
	meta.Album = strings.TrimSpace(m.Album())
	meta.Genre = strings.TrimSpace(m.Genre())
	meta.Year = m.Year()
	meta.TrackNumber, _ = m.Track()
	meta.DiscNumber, _ = m.Disc()
	meta.HasArtwork = m.Picture() != nil
	if comp, ok := m.Raw()["compilation"]; ok {
		switch v := comp.(type) {
		case bool:
			meta.Compilation = v
		case string:
			meta.Compilation = v == "1" || strings.EqualFold(v, "true")
		case int:
			meta.Compilation = v != 0
		}
	}
}
