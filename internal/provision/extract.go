package provision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ExtractZip unpacks the archive at src into dest, overwriting existing files.
func ExtractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("unable to open archive: %w", err)
	}
	defer r.Close() //nolint:errcheck

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}

	clean := filepath.Clean(dest)
	root := clean + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if target != clean && !strings.HasPrefix(target, root) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("unable to create directory: %w", err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", f.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil { //nolint:gosec
		_ = out.Close()
		return fmt.Errorf("unable to extract %s: %w", f.Name, err)
	}
	return out.Close()
}
