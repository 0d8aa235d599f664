package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/KrystianJachna/DiscordMusicBot/internal/track"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
)

// snapshot is the on-disk representation of a TrackCache
type snapshot struct {
	Version int
	Tracks  []track.Track
	Aliases map[string]string
}

const snapshotVersion = 1

// Save writes the live entries of c to path as a zstd compressed gob stream.
// The file is replaced atomically.
func (c *TrackCache) Save(path string, level int) error {
	tracks, aliases := c.entries()

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(snapshot{
		Version: snapshotVersion,
		Tracks:  tracks,
		Aliases: aliases,
	}); err != nil {
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}

	if level <= 0 {
		level = 3
	}
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()
	data := encoder.EncodeAll(raw.Bytes(), nil)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}

	log.Debug("Saved track cache",
		"path", path,
		"tracks", len(tracks),
		"size", humanize.Bytes(uint64(len(data))),
		"raw", humanize.Bytes(uint64(raw.Len())))
	return nil
}

// Load restores entries from a snapshot written by Save, skipping expired
// tracks. A missing file leaves the cache untouched.
func (c *TrackCache) Load(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: unknown version %d", ErrSnapshotCorrupted, snap.Version)
	}

	n := c.restore(snap.Tracks, snap.Aliases)
	log.Debug("Loaded track cache", "path", path, "tracks", n, "size", humanize.Bytes(uint64(len(data))))
	return n, nil
}

func writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
