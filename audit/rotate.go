package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// rotate moves the active file aside and reopens path empty. Must be called
// with l.mu held.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("audit: failed to close log file: %w", err)
	}
	l.file = nil

	l.rotations++
	rotated := fmt.Sprintf("%s.%s.%d", l.path, l.now().Format("20060102T150405"), l.rotations)
	if err := os.Rename(l.path, rotated); err != nil {
		// keep logging to the original file
		if openErr := l.open(); openErr != nil {
			return openErr
		}
		return fmt.Errorf("audit: failed to rotate log file: %w", err)
	}

	if err := l.open(); err != nil {
		return err
	}

	if l.compress {
		if err := compressFile(rotated); err != nil {
			return err
		}
	}
	return nil
}

// compressFile writes src into src.zip and removes src
func compressFile(src string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("audit: failed to open rotated file: %w", err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("audit: failed to stat rotated file: %w", err)
	}

	dst := src + ".zip"
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: failed to create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("audit: failed to close archive: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("audit: failed to build archive header: %w", err)
	}
	header.Name = filepath.Base(src)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("audit: failed to create archive entry: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("audit: failed to compress rotated file: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("audit: failed to finish archive: %w", err)
	}

	_ = in.Close()
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("audit: failed to remove rotated file: %w", err)
	}
	return nil
}
