package playback

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Blob is a playable audio unit handed to a Player
type Blob struct {
	ID       string
	Data     []byte
	Path     string // set when the store is file backed
	MIME     string
	Duration time.Duration // estimated
}

// BlobStore hands out blob handles and revokes them. With a directory it
// writes each blob to a temp file so external players can open it.
type BlobStore struct {
	mu     sync.Mutex
	dir    string
	live   map[string]*Blob
	logger *zap.Logger
}

func NewBlobStore(dir string, logger *zap.Logger) *BlobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{dir: dir, live: make(map[string]*Blob), logger: logger.Named("blobs")}
}

// Put registers data as a new blob
func (s *BlobStore) Put(data []byte, mime string, duration time.Duration) (*Blob, error) {
	b := &Blob{
		ID:       uuid.NewString(),
		Data:     data,
		MIME:     mime,
		Duration: duration,
	}
	if s.dir != "" {
		path := filepath.Join(s.dir, "lingreader-"+b.ID+extension(mime))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("write blob: %w", err)
		}
		b.Path = path
	}
	s.mu.Lock()
	s.live[b.ID] = b
	s.mu.Unlock()
	return b, nil
}

// Revoke releases a blob; revoking twice is harmless
func (s *BlobStore) Revoke(b *Blob) {
	if b == nil {
		return
	}
	s.mu.Lock()
	_, ok := s.live[b.ID]
	delete(s.live, b.ID)
	s.mu.Unlock()
	if ok && b.Path != "" {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove blob file failed", zap.String("path", b.Path), zap.Error(err))
		}
	}
}

// RevokeAll releases every outstanding blob
func (s *BlobStore) RevokeAll() {
	s.mu.Lock()
	blobs := make([]*Blob, 0, len(s.live))
	for _, b := range s.live {
		blobs = append(blobs, b)
	}
	s.mu.Unlock()
	for _, b := range blobs {
		s.Revoke(b)
	}
}

// Len reports the number of outstanding blobs
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func extension(mime string) string {
	switch mime {
	case "audio/ogg", "audio/ogg; codecs=opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	default:
		return ".bin"
	}
}

// EstimateDuration guesses the playing time of size bytes
func EstimateDuration(size, bytesPerSecond int) time.Duration {
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(int64(size) * int64(time.Second) / int64(bytesPerSecond))
}
