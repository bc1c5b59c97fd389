package chunk

const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Metadata keys attached to every chunk.
const (
	MetaFileName    = "file_name"
	MetaFilePath    = "file_path"
	MetaChunkIndex  = "chunk_index"
	MetaContentHash = "content_hash"
)

// DefaultSeparators splits on paragraphs, then lines, then words, then characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Document represents the full text of one source file prior to chunking.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Settings configures chunking.
type Settings struct {
	Size              int
	Overlap           int
	Separators        []string
	NormalizeNewlines bool
}

// Chunk is one overlapping segment of a document ready for embedding.
type Chunk struct {
	ID       string
	Text     string
	Hash     string
	Index    int
	Metadata map[string]any
}

// FileName returns the source file name recorded on the chunk.
func (c Chunk) FileName() string {
	return metadataString(c.Metadata, MetaFileName)
}

// FilePath returns the source file path recorded on the chunk.
func (c Chunk) FilePath() string {
	return metadataString(c.Metadata, MetaFilePath)
}
