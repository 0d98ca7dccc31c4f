package bmp565

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
)

// Paths are the two files a successful WriteAtomic publishes.
type Paths struct {
	BMP string
	Z   string // zlib-compressed copy, BMP + ".z"
}

// WriteAtomic publishes data as dir/name together with a zlib copy at
// dir/name.z. Both are written in full to ".tmp" siblings and synced before
// either is renamed into place. A failure before the renames removes the temp
// files and leaves no file under either final name.
func WriteAtomic(dir, name string, data []byte) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create output dir: %w", err)
	}

	p := Paths{BMP: filepath.Join(dir, name)}
	p.Z = p.BMP + ".z"
	bmpTmp := p.BMP + ".tmp"
	zTmp := p.Z + ".tmp"

	if err := writeSynced(bmpTmp, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	}); err != nil {
		return Paths{}, err
	}

	if err := writeSynced(zTmp, func(f *os.File) error {
		zw, err := zlib.NewWriterLevel(f, zlib.BestCompression)
		if err != nil {
			return err
		}
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}); err != nil {
		os.Remove(bmpTmp)
		return Paths{}, err
	}

	if err := os.Rename(bmpTmp, p.BMP); err != nil {
		os.Remove(bmpTmp)
		os.Remove(zTmp)
		return Paths{}, fmt.Errorf("rename failed: %w", err)
	}
	if err := os.Rename(zTmp, p.Z); err != nil {
		os.Remove(zTmp)
		return Paths{}, fmt.Errorf("rename failed: %w", err)
	}
	return p, nil
}

// writeSynced creates path, fills it with fill and fsyncs it. On any error
// the file is removed.
func writeSynced(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}

	err = fill(f)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
