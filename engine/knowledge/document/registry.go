package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/chunk"
)

// MaxFileSizeBytes bounds how much of a single source file is loaded.
const MaxFileSizeBytes = 32 * 1024 * 1024

// Reader extracts plain text from the raw bytes of one document format.
type Reader interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry dispatches documents to readers by extension, falling back to
// content sniffing when the extension is unknown.
type Registry struct {
	byExt  map[string]Reader
	byMIME map[string]Reader
}

// NewRegistry returns a registry restricted to the given extensions. With no
// extensions every built-in reader is enabled.
func NewRegistry(extensions ...string) *Registry {
	builtin := map[string]Reader{
		".docx": DOCXReader{},
		".pdf":  PDFReader{},
		".txt":  TextReader{},
		".md":   TextReader{},
	}
	r := &Registry{byExt: make(map[string]Reader), byMIME: make(map[string]Reader)}
	if len(extensions) == 0 {
		for ext := range builtin {
			extensions = append(extensions, ext)
		}
	}
	for _, ext := range extensions {
		ext = normalizeExt(ext)
		if reader, ok := builtin[ext]; ok {
			r.Register(ext, reader)
		}
	}
	return r
}

// Register binds a reader to an extension and to the MIME type that extension maps to.
func (r *Registry) Register(ext string, reader Reader) {
	ext = normalizeExt(ext)
	r.byExt[ext] = reader
	if mime := mimeForExt(ext); mime != "" {
		r.byMIME[mime] = reader
	}
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}

// Read loads path and returns its text with file_name and file_path metadata.
// A document whose text is blank yields core.EmptyDocumentError.
func (r *Registry) Read(ctx context.Context, path string) (chunk.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return chunk.Document{}, fmt.Errorf("document: resolve %q: %w", path, err)
	}
	data, err := readLimited(abs)
	if err != nil {
		return chunk.Document{}, err
	}
	reader, err := r.readerFor(abs, data)
	if err != nil {
		return chunk.Document{}, err
	}
	text, err := reader.Extract(ctx, data)
	if err != nil {
		return chunk.Document{}, fmt.Errorf("document: extract %q: %w", abs, err)
	}
	text = normalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return chunk.Document{}, core.NewEmptyDocumentError(abs)
	}
	return chunk.Document{
		ID:   abs,
		Text: text,
		Metadata: map[string]any{
			chunk.MetaFileName: filepath.Base(abs),
			chunk.MetaFilePath: abs,
		},
	}, nil
}

func (r *Registry) readerFor(path string, data []byte) (Reader, error) {
	if reader, ok := r.byExt[normalizeExt(filepath.Ext(path))]; ok {
		return reader, nil
	}
	detected := Detect(data)
	if reader, ok := r.byMIME[detected]; ok {
		return reader, nil
	}
	return nil, fmt.Errorf("document: unsupported format %q for %q", detected, path)
}

// Detect returns the sniffed MIME type of data without parameters.
func Detect(data []byte) string {
	mt := mimetype.Detect(data)
	for ; mt != nil; mt = mt.Parent() {
		switch mt.String() {
		case mimeDOCX, mimePDF:
			return mt.String()
		}
		if mt.Is(mimeText) {
			return mimeText
		}
	}
	return "application/octet-stream"
}

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePDF  = "application/pdf"
	mimeText = "text/plain"
)

func mimeForExt(ext string) string {
	switch ext {
	case ".docx":
		return mimeDOCX
	case ".pdf":
		return mimePDF
	case ".txt":
		return mimeText
	default:
		return ""
	}
}

func readLimited(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("document: open %q: %w", path, err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxFileSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("document: read %q: %w", path, err)
	}
	if len(data) > MaxFileSizeBytes {
		return nil, fmt.Errorf("document: %q exceeds maximum size of %d bytes", path, MaxFileSizeBytes)
	}
	return data, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
