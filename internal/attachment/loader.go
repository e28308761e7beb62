package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/dgallion1/notionmd/internal/block"
)

// DefaultMaxBytes caps attachment downloads.
const DefaultMaxBytes = 10 << 20

// Loader downloads file blocks and converts them to documents.
type Loader struct {
	HTTP        *http.Client
	MaxBytes    int64
	PDFFallback bool
}

// NewLoader creates a loader with a default HTTP client.
func NewLoader(maxBytes int64, pdfFallback bool) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{HTTP: &http.Client{}, MaxBytes: maxBytes, PDFFallback: pdfFallback}
}

// Filename picks the name used to select a converter: the block name when it
// carries a supported extension, otherwise the last URL path element.
func Filename(f block.File) string {
	if IsSupported(f.Name) {
		return f.Name
	}
	if u, err := url.Parse(f.URL); err == nil {
		if base := path.Base(u.Path); IsSupported(base) {
			return base
		}
	}
	return f.Name
}

// Load downloads f and converts it.
func (l *Loader) Load(ctx context.Context, f block.File) (*block.Document, error) {
	name := Filename(f)
	conv, err := ForFile(name, l.PDFFallback)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := l.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > l.MaxBytes {
		return nil, fmt.Errorf("attachment %s exceeds %d bytes", name, l.MaxBytes)
	}

	doc, err := conv.Convert(bytes.NewReader(data), name)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", name, err)
	}
	if f.Name != "" {
		doc.Title = f.Name
	}
	return doc, nil
}
