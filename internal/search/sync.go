package search

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/elena-cabrera/markdown-os/internal/parser"
	"github.com/elena-cabrera/markdown-os/internal/storage"
)

// IndexDocument parses content and upserts it under path.
func (db *DB) IndexDocument(path, content string) error {
	res := parser.Parse([]byte(content))
	row := Row{
		Path:      path,
		Title:     res.Title,
		Checksum:  sum([]byte(content)),
		UpdatedAt: time.Now().UTC(),
	}
	return db.Upsert(row, res.Plain)
}

// Sync walks the workspace and brings the index up to date:
//   - new and changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
func Sync(db *DB, ws *storage.Workspace, logger *slog.Logger) error {
	files, err := ws.ListFiles()
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, rel := range files {
		disk[rel] = struct{}{}

		f, err := ws.Open(rel)
		if err != nil {
			logger.Warn("sync: open failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		content, err := f.Read()
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		if checksums[rel] == sum([]byte(content)) {
			continue
		}
		if err := db.IndexDocument(rel, content); err != nil {
			logger.Warn("sync: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", rel))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.Delete(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// sum returns the hex-encoded SHA-256 digest of data.
func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
