// Package example holds the bundled showcase document written by the
// "example" CLI command and exposed as an MCP resource.
package example

import (
	"fmt"
	"os"
	"path/filepath"
)

// Document is the showcase markdown demonstrating what the editor
// renders and how live reload behaves.
const Document = `# Welcome to Markdown-OS

A local markdown editor in your browser. This file shows off the basics.

## Editing

Type in the editor and press **Ctrl+S** (or the Save button) to write
your changes back to disk. Saves are atomic: the file on disk is never
left half-written, even if the process dies mid-save.

## Live reload

Open this file in another editor and save it there. The browser picks
the change up within a fraction of a second. Changes you make through
the browser itself do not trigger a reload loop.

## Formatting

Regular markdown works as you would expect:

- Lists, *emphasis* and ` + "`inline code`" + `
- [Links](https://example.com)
- Tables, quotes and fenced code blocks

` + "```go" + `
func main() {
	fmt.Println("hello from a fenced block")
}
` + "```" + `

> Block quotes hold up too.

## Folder mode

Run ` + "`markdown-os open <directory>`" + ` to browse and edit every
markdown file under a directory, with a file tree, full-text search and
create/rename/delete from the sidebar.

Happy writing!
`

// ResolveOutputPath normalizes the output argument: directories get
// example.md appended, everything is made absolute.
func ResolveOutputPath(output string) (string, error) {
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		output = filepath.Join(output, "example.md")
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return "", fmt.Errorf("example: resolve output %s: %w", output, err)
	}
	return abs, nil
}

// Write stores the showcase document at path, creating parent
// directories as needed.
func Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("example: create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(Document), 0o644); err != nil {
		return fmt.Errorf("example: write %s: %w", path, err)
	}
	return nil
}
