// Package index keeps a bleve full-text index over the download history.
package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/models"
)

// DefaultSearchLimit caps the number of hits returned by Search when limit is not positive.
const DefaultSearchLimit = 20

// Document is what gets indexed for one history entry.
type Document struct {
	CompletedAt time.Time `json:"completedAt"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Kind        string    `json:"kind"`
	Quality     string    `json:"quality"`
	Container   string    `json:"container"`
	OutputPath  string    `json:"outputPath"`
}

// Hit is one search result.
type Hit struct {
	VideoID string
	Title   string
	Author  string
	Score   float64
}

func buildMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()
	text := bleve.NewTextFieldMapping()
	stored := bleve.NewTextFieldMapping()
	stored.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("author", text)
	doc.AddFieldMappingsAt("kind", keyword)
	doc.AddFieldMappingsAt("quality", keyword)
	doc.AddFieldMappingsAt("container", keyword)
	doc.AddFieldMappingsAt("outputPath", stored)
	doc.AddFieldMappingsAt("completedAt", bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// OpenOrCreateIndex opens the index at path, creating it when it does not exist.
func OpenOrCreateIndex(path string) (bleve.Index, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: index path is empty", models.ErrInvalidInput)
	}

	idx, err := bleve.Open(path)
	if err == nil {
		log.Debugf("[Index] Opened index at %s", path)
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", dir, err)
		}
	}
	idx, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index %s: %w", path, err)
	}
	log.Infof("[Index] Created index at %s", path)
	return idx, nil
}

// IndexEntry adds or replaces the document of entry.
func IndexEntry(idx bleve.Index, entry models.HistoryEntry) error {
	doc := Document{
		CompletedAt: entry.CompletedAt,
		Title:       entry.Title,
		Author:      entry.Author,
		Kind:        entry.Kind,
		Quality:     entry.Quality,
		Container:   entry.Container,
		OutputPath:  entry.OutputPath,
	}
	if err := idx.Index(entry.VideoID, doc); err != nil {
		return fmt.Errorf("indexing %s: %w", entry.VideoID, err)
	}
	return nil
}

// DeleteEntry removes the document of videoID.
func DeleteEntry(idx bleve.Index, videoID string) error {
	return idx.Delete(videoID)
}

// Search runs a query string query (e.g. "rick", "author:astley", "+kind:audio") and
// returns the best hits first.
func Search(idx bleve.Index, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"title", "author"}
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{VideoID: h.ID, Score: h.Score}
		if v, ok := h.Fields["title"].(string); ok {
			hit.Title = v
		}
		if v, ok := h.Fields["author"].(string); ok {
			hit.Author = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
