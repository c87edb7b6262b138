// Package backup snapshots the embedded database file to object storage.
// An archive is the checkpointed file, snappy-compressed, stored next to
// a JSON manifest carrying a murmur3 fingerprint of the raw bytes so a
// restore can detect corruption before overwriting anything.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	apperrors "github.com/fluxtable/fluxtable/internal/errors"
	"github.com/fluxtable/fluxtable/internal/storage"
)

// Checkpointer flushes engine state to the database file. The store
// satisfies it; backends without a local file reject the checkpoint and
// the snapshot fails before touching storage.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Manifest describes one stored snapshot.
type Manifest struct {
	ID          string    `json:"id"`
	Backend     string    `json:"backend"`
	CreatedAt   time.Time `json:"created_at"`
	ArchiveKey  string    `json:"archive_key"`
	RawBytes    int64     `json:"raw_bytes"`
	StoredBytes int64     `json:"stored_bytes"`
	Fingerprint string    `json:"fingerprint"`
}

// Snapshotter creates and restores archives of one database file.
type Snapshotter struct {
	cp      Checkpointer
	store   storage.ObjectStorage
	dbPath  string
	backend string
	prefix  string
}

func NewSnapshotter(cp Checkpointer, store storage.ObjectStorage, dbPath, backend string) *Snapshotter {
	return &Snapshotter{
		cp:      cp,
		store:   store,
		dbPath:  dbPath,
		backend: backend,
		prefix:  "snapshots",
	}
}

// Snapshot checkpoints the engine, compresses the database file, and
// uploads archive plus manifest. The manifest is written last so a
// listed snapshot is always complete.
func (s *Snapshotter) Snapshot(ctx context.Context) (Manifest, error) {
	if err := s.cp.Checkpoint(ctx); err != nil {
		return Manifest{}, err
	}

	raw, err := os.ReadFile(s.dbPath)
	if err != nil {
		return Manifest{}, apperrors.NewInternalError("reading database file", err)
	}

	compressed := snappy.Encode(nil, raw)
	h1, h2 := murmur3.Sum128(raw)

	m := Manifest{
		ID:          uuid.New().String(),
		Backend:     s.backend,
		CreatedAt:   time.Now().UTC(),
		RawBytes:    int64(len(raw)),
		StoredBytes: int64(len(compressed)),
		Fingerprint: fmt.Sprintf("%016x%016x", h1, h2),
	}
	m.ArchiveKey = path.Join(s.prefix, m.ID+".snap")

	if err := s.store.Put(ctx, m.ArchiveKey, bytes.NewReader(compressed)); err != nil {
		return Manifest{}, apperrors.NewInternalError("uploading snapshot archive", err)
	}

	meta, err := json.Marshal(m)
	if err != nil {
		return Manifest{}, apperrors.NewInternalError("encoding snapshot manifest", err)
	}
	if err := s.store.Put(ctx, s.manifestKey(m.ID), bytes.NewReader(meta)); err != nil {
		return Manifest{}, apperrors.NewInternalError("uploading snapshot manifest", err)
	}

	return m, nil
}

// Restore writes the snapshot's database file to destPath. The archive
// is decompressed and fingerprint-checked before the destination is
// touched; the final rename is atomic.
func (s *Snapshotter) Restore(ctx context.Context, id, destPath string) error {
	m, err := s.Lookup(ctx, id)
	if err != nil {
		return err
	}

	rc, err := s.store.Get(ctx, m.ArchiveKey)
	if err != nil {
		return apperrors.NewInternalError("downloading snapshot archive", err)
	}
	defer rc.Close()

	compressed, err := io.ReadAll(rc)
	if err != nil {
		return apperrors.NewInternalError("reading snapshot archive", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return apperrors.NewInternalError("decompressing snapshot archive", err)
	}

	h1, h2 := murmur3.Sum128(raw)
	if got := fmt.Sprintf("%016x%016x", h1, h2); got != m.Fingerprint {
		return apperrors.NewInternalError(
			fmt.Sprintf("snapshot %s fingerprint mismatch: archive is corrupt", id), nil)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".restore-*")
	if err != nil {
		return apperrors.NewInternalError("staging restored database", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return apperrors.NewInternalError("writing restored database", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewInternalError("writing restored database", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return apperrors.NewInternalError("replacing database file", err)
	}
	return nil
}

// Lookup fetches one snapshot's manifest.
func (s *Snapshotter) Lookup(ctx context.Context, id string) (Manifest, error) {
	rc, err := s.store.Get(ctx, s.manifestKey(id))
	if err != nil {
		if err == storage.ErrObjectNotFound {
			return Manifest{}, apperrors.NewNotFoundError(
				fmt.Sprintf("snapshot %s not found", id))
		}
		return Manifest{}, apperrors.NewInternalError("downloading snapshot manifest", err)
	}
	defer rc.Close()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return Manifest{}, apperrors.NewInternalError("decoding snapshot manifest", err)
	}
	return m, nil
}

// List returns the manifests of every stored snapshot.
func (s *Snapshotter) List(ctx context.Context) ([]Manifest, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, apperrors.NewInternalError("listing snapshots", err)
	}

	var manifests []Manifest
	for _, key := range keys {
		if path.Ext(key) != ".json" {
			continue
		}
		rc, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, apperrors.NewInternalError("downloading snapshot manifest", err)
		}
		var m Manifest
		decodeErr := json.NewDecoder(rc).Decode(&m)
		rc.Close()
		if decodeErr != nil {
			return nil, apperrors.NewInternalError("decoding snapshot manifest", decodeErr)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func (s *Snapshotter) manifestKey(id string) string {
	return path.Join(s.prefix, id+".manifest.json")
}
