package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/compozy/docqa/engine/core"
	"github.com/tmc/langchaingo/textsplitter"
)

var newlinePattern = regexp.MustCompile(`\r\n|\r`)

// Processor splits documents into overlapping chunks.
type Processor struct {
	settings Settings
	splitter textsplitter.RecursiveCharacter
}

// NewProcessor validates settings and builds the recursive splitter.
func NewProcessor(settings Settings) (*Processor, error) {
	if settings.Size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if settings.Overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	if settings.Overlap >= settings.Size {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", settings.Overlap, settings.Size)
	}
	if len(settings.Separators) == 0 {
		settings.Separators = DefaultSeparators
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(settings.Size),
		textsplitter.WithChunkOverlap(settings.Overlap),
		textsplitter.WithSeparators(settings.Separators),
	)
	return &Processor{settings: settings, splitter: splitter}, nil
}

// Settings returns the effective settings.
func (p *Processor) Settings() Settings {
	return p.settings
}

// Split cuts one document's text into chunks that each carry a copy of metadata.
// Empty or blank text yields an EmptyDocumentError.
func (p *Processor) Split(text string, metadata map[string]any) ([]Chunk, error) {
	source := metadataString(metadata, MetaFilePath)
	normalized := p.preprocess(text)
	if normalized == "" {
		return nil, core.NewEmptyDocumentError(source)
	}
	segments, err := p.splitter.SplitText(normalized)
	if err != nil {
		return nil, fmt.Errorf("chunk: split document %s: %w", source, err)
	}
	chunks := make([]Chunk, 0, len(segments))
	for _, segment := range segments {
		chunkText := strings.TrimSpace(segment)
		if chunkText == "" {
			continue
		}
		idx := len(chunks)
		hash := hashText(chunkText)
		meta := core.CloneMap(metadata)
		meta[MetaChunkIndex] = idx
		meta[MetaContentHash] = hash
		chunks = append(chunks, Chunk{
			ID:       hashText(source + "::" + fmt.Sprint(idx) + "::" + hash),
			Text:     chunkText,
			Hash:     hash,
			Index:    idx,
			Metadata: meta,
		})
	}
	if len(chunks) == 0 {
		return nil, core.NewEmptyDocumentError(source)
	}
	return chunks, nil
}

// Process splits every document. The document ID stands in for the file path
// when the metadata does not carry one.
func (p *Processor) Process(docs []Document) ([]Chunk, error) {
	out := make([]Chunk, 0, len(docs))
	for i := range docs {
		doc := docs[i]
		meta := core.CloneMap(doc.Metadata)
		if metadataString(meta, MetaFilePath) == "" && doc.ID != "" {
			meta[MetaFilePath] = doc.ID
		}
		chunks, err := p.Split(doc.Text, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

func (p *Processor) preprocess(text string) string {
	normalized := text
	if p.settings.NormalizeNewlines {
		normalized = newlinePattern.ReplaceAllString(normalized, "\n")
	}
	return strings.TrimSpace(normalized)
}

func hashText(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	value, ok := meta[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
