package storage

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStoreReadRemoveRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir(), 1<<20)
	brandID := primitive.NewObjectID()
	payload := []byte("%PDF-1.7 fake document body")

	stored, err := m.Store(brandID, "brief.pdf", "application/pdf", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), stored.Size)
	assert.Equal(t, fmt.Sprintf("%x", md5.Sum(payload)), stored.Hash)
	assert.Contains(t, stored.Path, brandID.Hex())
	assert.True(t, strings.HasSuffix(stored.Path, ".pdf"))

	data, err := m.Read(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	require.NoError(t, m.Remove(stored.Path))
	_, err = os.Stat(stored.Path)
	assert.True(t, os.IsNotExist(err))

	// Removing an already removed file is fine.
	require.NoError(t, m.Remove(stored.Path))
	require.NoError(t, m.Remove(""))
}

func TestStoreRejectsWrongMagicBytes(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 1<<20)
	brandID := primitive.NewObjectID()

	_, err := m.Store(brandID, "fake.pdf", "application/pdf", strings.NewReader("MZ windows executable"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match claimed type")

	// The rejected payload must not linger on disk.
	entries, err := os.ReadDir(filepath.Join(root, "resources", brandID.Hex()))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreRejectsOversizedPayload(t *testing.T) {
	m := NewManager(t.TempDir(), 16)

	_, err := m.Store(primitive.NewObjectID(), "big.txt", "text/plain", strings.NewReader(strings.Repeat("x", 64)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestStoreAcceptsDocxZipHeader(t *testing.T) {
	m := NewManager(t.TempDir(), 1<<20)

	stored, err := m.Store(primitive.NewObjectID(), "brief.docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		strings.NewReader("PK\x03\x04 rest of archive"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.Path, ".docx"))
}

func TestReadRefusesOversizedFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 8)
	path := filepath.Join(dir, "grown.txt")
	require.NoError(t, os.WriteFile(path, []byte("way more than eight bytes"), 0644))

	_, err := m.Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}
