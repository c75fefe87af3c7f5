package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
)

// MetadataAnalyzer is the second service: it turns raw tags into catalog
// structure, linking audio media to albums, artists and genres, and
// classifying video media as movies or show episodes.
type MetadataAnalyzer struct {
	cat *catalog.Catalog
}

// NewMetadataAnalyzer builds the second chain stage.
func NewMetadataAnalyzer() *MetadataAnalyzer {
	return &MetadataAnalyzer{}
}

func (s *MetadataAnalyzer) Name() string { return "analysis" }

func (s *MetadataAnalyzer) NbThreads() int { return 1 }

func (s *MetadataAnalyzer) Step() catalog.Step { return catalog.StepMetadataAnalysis }

func (s *MetadataAnalyzer) Initialize(cat *catalog.Catalog) bool {
	s.cat = cat
	return true
}

func (s *MetadataAnalyzer) IsCompleted(t *catalog.Task) bool {
	return t.HasStep(catalog.StepMetadataAnalysis)
}

// Run links the task's media into the musical or video model.
func (s *MetadataAnalyzer) Run(t *catalog.Task) Status {
	media, err := s.taskMedia(t)
	if err != nil {
		return StatusError
	}
	if media == nil {
		return StatusDiscarded
	}
	meta := t.Meta
	if meta == nil {
		// restored after a crash: the extractor's step bit is set but its
		// in-memory output is gone. Structure-less linking still works
		// from the media row alone.
		meta = &catalog.TaskMetadata{IsAudio: media.Type == catalog.MediaTypeAudio}
		t.Meta = meta
	}

	switch media.Type {
	case catalog.MediaTypeAudio:
		if err := s.analyzeAudio(media, meta); err != nil {
			util.ErrorLog("task %d: audio analysis failed: %v", t.ID, err)
			return StatusError
		}
	case catalog.MediaTypeVideo:
		if err := s.analyzeVideo(media, meta); err != nil {
			util.ErrorLog("task %d: video analysis failed: %v", t.ID, err)
			return StatusError
		}
	}
	t.Media = media
	return StatusSuccess
}

func (s *MetadataAnalyzer) taskMedia(t *catalog.Task) (*catalog.Media, error) {
	if t.Media != nil {
		return t.Media, nil
	}
	if !t.FileID.Valid {
		return nil, nil
	}
	return s.cat.MediaByFileID(t.FileID.Int64)
}

// analyzeAudio attaches the media to an album track. Unknown tags fall
// back to the seeded default artists.
func (s *MetadataAnalyzer) analyzeAudio(media *catalog.Media, meta *catalog.TaskMetadata) error {
	if track, err := s.cat.TrackByMedia(media.ID); err != nil {
		return err
	} else if track != nil {
		// already linked by a previous run
		return nil
	}

	artistID, albumArtistID, err := s.resolveArtists(meta)
	if err != nil {
		return err
	}

	var genreID int64
	if g := canonicalize(meta.Genre); g != "" {
		genre, err := s.cat.CreateGenre(g)
		if err != nil {
			return err
		}
		genreID = genre.ID
	}

	albumTitle := canonicalize(meta.Album)
	if albumTitle == "" {
		albumTitle = "Unknown Album"
	}
	album, err := s.cat.AlbumByTitleAndArtist(albumTitle, albumArtistID)
	if err != nil {
		return err
	}
	if album == nil {
		album, err = s.cat.CreateAlbum(albumTitle, albumArtistID)
		if err != nil {
			return err
		}
	}
	if meta.Year != 0 && !album.ReleaseYear.Valid {
		if err := s.cat.SetAlbumInfo(album.ID, int64(meta.Year), "", ""); err != nil {
			return err
		}
	}

	if _, err := s.cat.AddAlbumTrack(media.ID, album.ID, artistID, genreID,
		meta.TrackNumber, meta.DiscNumber, media.Duration); err != nil {
		return err
	}

	media.SubType = catalog.MediaSubTypeAlbumTrack
	if title := canonicalize(meta.Title); title != "" {
		media.Title = title
	}
	if meta.Year != 0 && !media.ReleaseDate.Valid {
		media.ReleaseDate.Valid = true
		media.ReleaseDate.Int64 = int64(meta.Year)
	}
	return s.cat.SaveMedia(nil, media)
}

// resolveArtists maps tags to (track artist, album artist) ids. A
// compilation routes the album to Various Artists; an explicit differing
// album artist gets its own artist row; no tags at all route to Unknown
// Artist.
func (s *MetadataAnalyzer) resolveArtists(meta *catalog.TaskMetadata) (artistID, albumArtistID int64, err error) {
	name := canonicalize(meta.Artist)
	albumName := canonicalize(meta.AlbumArtist)

	if name == "" && albumName == "" {
		return catalog.UnknownArtistID, catalog.UnknownArtistID, nil
	}

	if name != "" {
		artist, err := s.cat.ArtistByName(name)
		if err != nil {
			return 0, 0, err
		}
		if artist == nil {
			artist, err = s.cat.CreateArtist(name)
			if err != nil {
				return 0, 0, err
			}
		}
		artistID = artist.ID
	} else {
		artistID = catalog.UnknownArtistID
	}

	switch {
	case meta.Compilation:
		albumArtistID = catalog.VariousArtistsID
	case albumName == "" || albumName == name:
		albumArtistID = artistID
	default:
		albumArtist, err := s.cat.ArtistByName(albumName)
		if err != nil {
			return 0, 0, err
		}
		if albumArtist == nil {
			albumArtist, err = s.cat.CreateArtist(albumName)
			if err != nil {
				return 0, 0, err
			}
		}
		albumArtistID = albumArtist.ID
	}
	return artistID, albumArtistID, nil
}

var episodePattern = regexp.MustCompile(`(?i)\bS(\d{1,2})\s*E(\d{1,3})\b`)

// analyzeVideo classifies a video as a show episode when the title carries
// an SxxEyy marker, a movie otherwise.
func (s *MetadataAnalyzer) analyzeVideo(media *catalog.Media, meta *catalog.TaskMetadata) error {
	if media.SubType != catalog.MediaSubTypeUnknown {
		return nil
	}
	title := canonicalize(meta.Title)
	if title == "" {
		title = media.Title
	}

	if m := episodePattern.FindStringSubmatch(title); m != nil {
		season, _ := strconv.Atoi(m[1])
		episode, _ := strconv.Atoi(m[2])
		showTitle := strings.TrimSpace(title[:strings.Index(title, m[0])])
		if showTitle == "" {
			showTitle = title
		}
		show, err := s.cat.ShowByTitle(showTitle)
		if err != nil {
			return err
		}
		if show == nil {
			show, err = s.cat.CreateShow(showTitle)
			if err != nil {
				return err
			}
		}
		_, err = s.cat.AddEpisode(show.ID, media.ID, title, season, episode)
		return err
	}

	_, err := s.cat.CreateMovie(media.ID, title)
	return err
}

// canonicalize trims and NFC-normalizes a tag value so that byte-different
// spellings of the same name collapse onto one row.
func canonicalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
