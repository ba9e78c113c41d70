package object

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	maxFileNameRunes = 120
	ownerDirLen      = 32
)

// ErrInvalidFileName is returned for names that are empty after cleaning or
// that try to leave the owner's namespace.
var ErrInvalidFileName = errors.New("invalid file name")

// NewKey returns a fresh storage key "<owner-dir>/<uuid>_<file>". The owner
// directory is a hash so owner ids never appear in object paths.
func NewKey(ownerID, fileName string) (string, error) {
	name, err := CleanFileName(fileName)
	if err != nil {
		return "", err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return path.Join(OwnerDir(ownerID), id+"_"+name), nil
}

// OwnerDir is the per-owner key prefix.
func OwnerDir(ownerID string) string {
	sum := sha256.Sum256([]byte(ownerID))
	return hex.EncodeToString(sum[:])[:ownerDirLen]
}

// CleanFileName keeps the base name of an upload, drops control characters
// and caps the length while keeping the extension.
func CleanFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(strings.TrimSpace(name)))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return "", ErrInvalidFileName
	}

	runes := []rune(name)
	if len(runes) > maxFileNameRunes {
		ext := []rune(path.Ext(name))
		if len(ext) >= maxFileNameRunes/2 {
			ext = nil
		}
		runes = append(runes[:maxFileNameRunes-len(ext)], ext...)
	}
	return string(runes), nil
}

// Sniff detects the content type from the first 512 bytes and returns a reader
// that replays them ahead of the rest of r.
func Sniff(r io.Reader) (string, io.Reader, error) {
	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("read sniff: %w", err)
	}
	return http.DetectContentType(head[:n]), io.MultiReader(bytes.NewReader(head[:n]), r), nil
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
