package storage

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StoredFile describes a payload written to disk.
type StoredFile struct {
	Path string
	Hash string // md5 hex, used for per-brand duplicate detection
	Size int64
}

// Manager keeps uploaded payloads on local disk, one directory per brand.
// Files are written through a temp file and renamed, so a crashed upload
// never leaves a half-written payload under the final name.
type Manager struct {
	root    string
	maxSize int64
}

func NewManager(root string, maxSize int64) *Manager {
	return &Manager{root: root, maxSize: maxSize}
}

// Store streams src to disk and returns its location, hash and size. The
// claimed media type is checked against the payload's leading bytes, so a
// renamed executable cannot pass as a document.
func (m *Manager) Store(brandID primitive.ObjectID, originalName, mediaType string, src io.Reader) (*StoredFile, error) {
	dir := filepath.Join(m.root, "resources", brandID.Hex())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath) // no-op after a successful rename
	}()

	limited := io.LimitReader(src, m.maxSize+1)
	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), limited)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	if size > m.maxSize {
		return nil, fmt.Errorf("file exceeds %d byte limit", m.maxSize)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush file: %w", err)
	}

	if err := checkMagicBytes(tmpPath, mediaType); err != nil {
		return nil, err
	}

	fileHash := fmt.Sprintf("%x", hash.Sum(nil))
	ext := filepath.Ext(originalName)
	finalName := fmt.Sprintf("%s_%d%s", fileHash[:8], time.Now().Unix(), ext)
	finalPath := filepath.Join(dir, finalName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("failed to finalize file: %w", err)
	}

	return &StoredFile{Path: finalPath, Hash: fileHash, Size: size}, nil
}

// Read loads a stored payload, refusing anything over the size cap. The cap
// guards against reading a path that was swapped out from under us.
func (m *Manager) Read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > m.maxSize {
		return nil, fmt.Errorf("stored file %s exceeds %d byte limit", filepath.Base(path), m.maxSize)
	}
	return os.ReadFile(path)
}

// Remove deletes a stored payload; a missing file is not an error.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var magicBytes = map[string][]byte{
	"application/pdf": []byte("%PDF"),
	// docx, like all OOXML formats, is a zip archive
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": []byte("PK"),
}

func checkMagicBytes(path, mediaType string) error {
	want, ok := magicBytes[mediaType]
	if !ok {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, len(want))
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("file too short for claimed type %s", mediaType)
	}
	if !bytes.Equal(head, want) {
		return fmt.Errorf("file content does not match claimed type %s", mediaType)
	}
	return nil
}
