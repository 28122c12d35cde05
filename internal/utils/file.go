package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

var mimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// IsImageFile checks if a file has an extension the preprocessor can decode
func IsImageFile(filename string) bool {
	_, ok := mimeTypes[GetFileExtension(filename)]
	return ok
}

// MimeType guesses the image MIME type from the file extension, "" if unknown
func MimeType(filename string) string {
	return mimeTypes[GetFileExtension(filename)]
}

// GenerateOutputFilename generates an output filename based on input and parameters
func GenerateOutputFilename(inputFile, outputDir, suffix, format string) string {
	baseName := filepath.Base(inputFile)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "png"
		}
	}

	return filepath.Join(outputDir, fmt.Sprintf("%s%s.%s", nameWithoutExt, suffix, format))
}

// ListImageFiles recursively lists all image files in a directory
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

// SpoolTemp copies r into a new file in dir (os.TempDir() if empty).
// The returned release func removes the file and is safe to call more than once.
// On error no file is left behind.
func SpoolTemp(dir, pattern string, r io.Reader) (path string, release func(), err error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path = f.Name()
	release = func() { _ = os.Remove(path) }

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return path, release, nil
}
