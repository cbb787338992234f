package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// moveToDated moves filePath into <root>/<YYYY-MM-DD>/, adding _1, _2 ... to
// the name until it does not clash. Returns the new path.
func moveToDated(filePath, root string, now time.Time) (string, error) {
	destDir := filepath.Join(root, now.Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(destPath)
	baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
	}

	if err := moveFile(filePath, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove moved file: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	return out.Close()
}
