// Package qrcode produces the per-member QR artifact requested at registration.
package qrcode

import (
	"fmt"
	"os"
	"path/filepath"

	qr "github.com/skip2/go-qrcode"
)

// Generator yields an artifact reference for a member ID.
type Generator interface {
	Generate(memberID string) (string, error)
}

// FileGenerator writes a PNG per member under dir and returns its public URL
// path under baseURL.
type FileGenerator struct {
	dir     string
	baseURL string
}

// NewFileGenerator ensures the output directory exists.
func NewFileGenerator(dir, baseURL string) (*FileGenerator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create qr directory: %w", err)
	}
	return &FileGenerator{dir: dir, baseURL: baseURL}, nil
}

// Generate encodes the member ID with high error correction and writes
// <dir>/<memberID>.png.
func (g *FileGenerator) Generate(memberID string) (string, error) {
	file := memberID + ".png"
	if err := qr.WriteFile(memberID, qr.High, 256, filepath.Join(g.dir, file)); err != nil {
		return "", fmt.Errorf("generate qr code: %w", err)
	}
	return g.baseURL + "/" + file, nil
}
