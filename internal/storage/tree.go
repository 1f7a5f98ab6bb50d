package storage

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// TreeNode is one entry in the workspace file tree. Folder nodes carry
// children; file nodes never do.
type TreeNode struct {
	Type     string      `json:"type"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Children []*TreeNode `json:"children,omitempty"`
}

const (
	nodeFolder = "folder"
	nodeFile   = "file"
)

// FileTree returns the nested folder/file tree of the workspace. The root
// node is a folder named after the root directory with an empty path.
// Children are sorted folders first, then case-insensitively by name, at
// every level.
func (w *Workspace) FileTree() (*TreeNode, error) {
	files, err := w.ListFiles()
	if err != nil {
		return nil, err
	}
	root := &TreeNode{Type: nodeFolder, Name: filepath.Base(w.root), Path: ""}
	for _, rel := range files {
		parts := strings.Split(rel, "/")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				cur.Children = append(cur.Children, &TreeNode{Type: nodeFile, Name: part, Path: rel})
				break
			}
			cur = cur.childFolder(part, path.Join(cur.Path, part))
		}
	}
	sortTree(root)
	return root, nil
}

// childFolder finds or creates the folder node named name under n.
func (n *TreeNode) childFolder(name, relPath string) *TreeNode {
	for _, c := range n.Children {
		if c.Type == nodeFolder && c.Name == name {
			return c
		}
	}
	c := &TreeNode{Type: nodeFolder, Name: name, Path: relPath}
	n.Children = append(n.Children, c)
	return c
}

func sortTree(n *TreeNode) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == nodeFolder
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	for _, c := range n.Children {
		if c.Type == nodeFolder {
			sortTree(c)
		}
	}
}
