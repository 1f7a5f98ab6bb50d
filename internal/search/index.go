package search

// DocumentIndex defines the interface for document indexing operations.
// Consumers depend on this rather than the concrete *DB so tests can
// substitute fakes.
type DocumentIndex interface {
	IndexDocument(path, content string) error
	Delete(path string) error
	Checksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]Result, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
