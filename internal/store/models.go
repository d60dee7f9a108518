package store

// Source identifies how a document entered the knowledge base.
type Source string

const (
	SourceWeb     Source = "web"
	SourceYouTube Source = "youtube"
	SourceFile    Source = "file"
	SourceDirect  Source = "direct"
)

// Metadata is copied from the owning document onto every chunk.
type Metadata struct {
	DocumentID string `json:"document_id,omitempty"`
	Source     Source `json:"source,omitempty"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	Author     string `json:"author,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

type Chunk struct {
	Text      string
	Embedding []float32
	Metadata  Metadata
}

type SearchResult struct {
	ID       string
	Score    float32
	Text     string
	Metadata Metadata
}

// DocumentSummary is derived from the first chunk seen for a document_id.
type DocumentSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}
