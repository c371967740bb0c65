// Package source loads raw documents from disk and extracts clean text
// for chunking. PDF extraction uses ledongthuc/pdf; plain text and
// markdown pass through with whitespace normalization.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/magic-research/ragd/internal/chunk"
	"github.com/magic-research/ragd/internal/errors"
)

// SupportedExtensions lists the file types the loader accepts.
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

var (
	multiSpacePattern = regexp.MustCompile(`[ \t]+`)
	multiBlankPattern = regexp.MustCompile(`\n{3,}`)
)

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Load extracts text from a single file and returns it as a document.
// The document name is the base filename without extension.
func Load(path string) (*chunk.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeFileNotFound, "file not found: %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	if info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "expected a file, got directory: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		text      string
		pageCount int
	)

	switch ext {
	case ".pdf":
		text, pageCount, err = extractPDF(path)
	case ".txt", ".md":
		text, err = readTextFile(path)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "unsupported file type %q (supported: %s)", ext, strings.Join(SupportedExtensions, ", "))
	}
	if err != nil {
		return nil, err
	}

	text = CleanText(text)
	if text == "" {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "no extractable text in %s", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &chunk.Document{
		Name:      name,
		Path:      path,
		Text:      text,
		PageCount: pageCount,
	}, nil
}

func extractPDF(path string) (string, int, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("failed to open PDF %s", path), err)
	}
	defer func() { _ = file.Close() }()

	pageCount := reader.NumPage()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("failed to extract text from PDF %s", path), err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", 0, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("failed to read PDF text from %s", path), err)
	}

	return sb.String(), pageCount, nil
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	return string(data), nil
}

// CleanText normalizes whitespace while preserving paragraph breaks:
// runs of spaces collapse to one, runs of blank lines collapse to one
// blank line, and line endings become \n.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = multiSpacePattern.ReplaceAllString(text, " ")

	// Trim trailing spaces per line so blank-line collapsing works.
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	text = strings.Join(lines, "\n")

	text = multiBlankPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Scan walks dir and returns the paths of all supported files, sorted
// by filepath.WalkDir's lexical order. Hidden files and directories
// (dot-prefixed) are skipped.
func Scan(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeFileNotFound, "directory not found: %s", dir)
		}
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "expected a directory, got file: %s", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
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
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	return paths, nil
}
