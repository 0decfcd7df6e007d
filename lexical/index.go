package lexical

import (
	"github.com/hupe1980/vectable/index"
	"github.com/hupe1980/vectable/model"
)

// Index is the interface for a lexical search index.
type Index interface {
	index.Index

	// Add adds a document to the index.
	Add(addr model.RowAddr, text string) error
	// Search performs a keyword search and returns up to k rows ranked by
	// descending relevance.
	Search(text string, k int, filter index.Filter) ([]index.SearchResult, error)
}
