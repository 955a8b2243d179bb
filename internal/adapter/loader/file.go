package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/tracelify/tracelify/internal/domain"
)

// SupportedExtensions lists the file types the loader accepts.
var SupportedExtensions = []string{".txt", ".md", ".markdown"}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// FileLoader reads plain text and markdown files from the local file system.
type FileLoader struct{}

// NewFileLoader creates a file loader.
func NewFileLoader() *FileLoader { return &FileLoader{} }

// Load reads path verbatim. The document id is the file name without its
// extension.
func (l *FileLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Document{}, domain.NotFound("load", domain.CodeDocumentNotFound, "Document not found: %s", path)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.Document{}, domain.InvalidInput("load", domain.CodeInvalidRequest, "%s is a directory", path)
	}
	if !Supported(path) {
		return domain.Document{}, domain.InvalidInput("load", domain.CodeUnsupportedFormat,
			"unsupported file type %q, expected one of %s", filepath.Ext(path), strings.Join(SupportedExtensions, ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return domain.Document{}, domain.InvalidInput("load", domain.CodeUnsupportedFormat, "%s is not valid UTF-8 text", path)
	}

	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return domain.Document{
		ID:      strings.TrimSuffix(name, ext),
		Content: string(data),
		Metadata: domain.Metadata{
			domain.MetaFilename:  name,
			domain.MetaPath:      path,
			domain.MetaExtension: ext,
		},
	}, nil
}

// Discover walks dir and returns every supported file, skipping hidden
// entries. Paths are in lexical order.
func (l *FileLoader) Discover(ctx context.Context, dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NotFound("discover", domain.CodeDocumentNotFound, "directory not found: %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, domain.InvalidInput("discover", domain.CodeInvalidRequest, "%s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}
