// internal/checkpoint/storage.go
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

var ErrNotFound = errors.New("checkpoint not found")

// Storage persists an append-only checkpoint log per thread.
//
// Layout:
//
//	<base>/<thread>/<version>-<id>/metadata.json
//	<base>/<thread>/<version>-<id>/state.zst
//	<base>/<thread>/content_pool/<sha256>
type Storage struct {
	baseDir          string
	compressionLevel int
	mu               sync.RWMutex
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder
}

// NewStorage creates a new checkpoint storage
func NewStorage(baseDir string, compressionLevel int) (*Storage, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	return &Storage{
		baseDir:          baseDir,
		compressionLevel: compressionLevel,
		encoder:          encoder,
		decoder:          decoder,
	}, nil
}

func (s *Storage) threadDir(threadID string) string {
	return filepath.Join(s.baseDir, safeName(threadID))
}

func (s *Storage) contentPoolDir(threadID string) string {
	return filepath.Join(s.threadDir(threadID), "content_pool")
}

func checkpointDirName(cp *Checkpoint) string {
	return fmt.Sprintf("%08d-%s", cp.Version, cp.ID)
}

// Put appends a checkpoint for cp.ThreadID. Version, ID and Timestamp are
// assigned here, and ParentID defaults to the previous checkpoint. blobs maps
// CalculateHash(content) to content.
func (s *Storage) Put(cp *Checkpoint, payload []byte, blobs map[string]string) error {
	if cp.ThreadID == "" {
		return errors.New("checkpoint has no thread id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.listLocked(cp.ThreadID)
	if err != nil {
		return err
	}

	cp.Version = 1
	if n := len(latest); n > 0 {
		cp.Version = latest[n-1].Version + 1
		if cp.ParentID == "" {
			cp.ParentID = latest[n-1].ID
		}
	}
	if cp.ID == "" {
		cp.ID = GenerateID()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}

	if err := s.writeBlobsLocked(cp.ThreadID, blobs); err != nil {
		return err
	}
	cp.Blobs = cp.Blobs[:0]
	for hash := range blobs {
		cp.Blobs = append(cp.Blobs, hash)
	}
	sort.Strings(cp.Blobs)

	// Readers skip *.tmp, so a checkpoint appears only once complete.
	final := filepath.Join(s.threadDir(cp.ThreadID), checkpointDirName(cp))
	tmp := final + ".tmp"
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	metadataJSON, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "metadata.json"), metadataJSON, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	compressed := s.encoder.EncodeAll(payload, nil)
	if err := os.WriteFile(filepath.Join(tmp, "state.zst"), compressed, 0644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (s *Storage) writeBlobsLocked(threadID string, blobs map[string]string) error {
	if len(blobs) == 0 {
		return nil
	}
	pool := s.contentPoolDir(threadID)
	if err := os.MkdirAll(pool, 0755); err != nil {
		return err
	}

	for hash, content := range blobs {
		contentFile := filepath.Join(pool, hash)
		// Content-addressable: an existing entry already holds this content
		if _, err := os.Stat(contentFile); err == nil {
			continue
		}
		compressed := s.encoder.EncodeAll([]byte(content), nil)
		if err := os.WriteFile(contentFile, compressed, 0644); err != nil {
			return fmt.Errorf("write blob %s: %w", hash, err)
		}
	}
	return nil
}

// Latest returns the newest checkpoint of a thread and its payload
func (s *Storage) Latest(threadID string) (*Checkpoint, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.listLocked(threadID)
	if err != nil {
		return nil, nil, err
	}
	if len(list) == 0 {
		return nil, nil, ErrNotFound
	}
	cp := list[len(list)-1]
	payload, err := s.readPayloadLocked(&cp)
	if err != nil {
		return nil, nil, err
	}
	return &cp, payload, nil
}

// Load returns a specific checkpoint of a thread and its payload
func (s *Storage) Load(threadID, checkpointID string) (*Checkpoint, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.listLocked(threadID)
	if err != nil {
		return nil, nil, err
	}
	for i := range list {
		if list[i].ID == checkpointID {
			payload, err := s.readPayloadLocked(&list[i])
			if err != nil {
				return nil, nil, err
			}
			return &list[i], payload, nil
		}
	}
	return nil, nil, ErrNotFound
}

func (s *Storage) readPayloadLocked(cp *Checkpoint) ([]byte, error) {
	path := filepath.Join(s.threadDir(cp.ThreadID), checkpointDirName(cp), "state.zst")
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	payload, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress state: %w", err)
	}
	return payload, nil
}

// Blob returns pooled content by hash
func (s *Storage) Blob(threadID, hash string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	compressed, err := os.ReadFile(filepath.Join(s.contentPoolDir(threadID), safeName(hash)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("blob %s: %w", hash, ErrNotFound)
		}
		return "", err
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("decompress blob %s: %w", hash, err)
	}
	return string(data), nil
}

// List returns all checkpoints of a thread ordered by version
func (s *Storage) List(threadID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(threadID)
}

// Exists reports whether a thread has at least one checkpoint
func (s *Storage) Exists(threadID string) bool {
	list, err := s.List(threadID)
	return err == nil && len(list) > 0
}

func (s *Storage) listLocked(threadID string) ([]Checkpoint, error) {
	dir := s.threadDir(threadID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var checkpoints []Checkpoint
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "content_pool" || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}

		metadataJSON, err := os.ReadFile(filepath.Join(dir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}

		var cp Checkpoint
		if json.Unmarshal(metadataJSON, &cp) == nil {
			checkpoints = append(checkpoints, cp)
		}
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Version < checkpoints[j].Version
	})
	return checkpoints, nil
}

// GenerateID generates a new checkpoint ID
func GenerateID() string {
	return uuid.New().String()
}

// CalculateHash calculates SHA256 hash of content
func CalculateHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h)
}

// safeName maps an id to a single directory entry under the storage root.
// Ids made of [A-Za-z0-9._-] are kept as is; anything else, "." and ".."
// included, is hex encoded behind a "~" so no two ids share a name.
func safeName(name string) string {
	if name != "." && name != ".." && name != "" && strings.IndexFunc(name, unsafeRune) < 0 {
		return name
	}
	return "~" + hex.EncodeToString([]byte(name))
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == '.' || r == '_' || r == '-':
		return false
	}
	return true
}
