package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/liftline/liftline/internal/timers"
)

// File is a best-effort on-disk snapshot of live timers, one JSON document
// per competition. Displays reload it after a restart so they keep showing
// something sensible while the authoritative state rebuilds. It is never
// consulted for decisions: absence, staleness or corruption are benign.
type File struct {
	dir string
}

// Document is the persisted shape of one competition's timers.
type Document struct {
	CompetitionID uuid.UUID                  `json:"competition_id"`
	WrittenAt     time.Time                  `json:"written_at"`
	Timers        map[string]timers.Snapshot `json:"timers"`
}

// NewFile creates a snapshot writer rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// Write persists the competition's timer snapshots atomically: the document
// lands in a temp file first and is renamed into place, so readers never
// observe a partial write. Failures are logged, not returned; display
// continuity is not worth failing a live operation over.
func (f *File) Write(competitionID uuid.UUID, snaps map[string]timers.Snapshot) {
	doc := Document{
		CompetitionID: competitionID,
		WrittenAt:     time.Now().UTC(),
		Timers:        snaps,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot marshal failed")
		return
	}

	final := f.path(competitionID)
	tmp, err := os.CreateTemp(f.dir, "timers-*.tmp")
	if err != nil {
		log.Warn().Err(err).Msg("snapshot temp file failed")
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		log.Warn().Err(err).Msg("snapshot write failed")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		log.Warn().Err(err).Msg("snapshot close failed")
		return
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		log.Warn().Err(err).Msg("snapshot rename failed")
	}
}

// Load reads the competition's last written snapshot. A missing or
// unreadable file returns (nil, false).
func (f *File) Load(competitionID uuid.UUID) (*Document, bool) {
	data, err := os.ReadFile(f.path(competitionID))
	if err != nil {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("competition_id", competitionID.String()).Msg("snapshot unreadable")
		return nil, false
	}
	return &doc, true
}

// Remove deletes the competition's snapshot, e.g. when the meet ends.
func (f *File) Remove(competitionID uuid.UUID) {
	os.Remove(f.path(competitionID))
}

func (f *File) path(competitionID uuid.UUID) string {
	return filepath.Join(f.dir, fmt.Sprintf("timers-%s.json", competitionID))
}
