package platform

/*------------------------------------------------------------------
 *
 * Purpose:	A Flash implementation backed by a single local file,
 *		standing in for the real sector-erase/program primitives
 *		spec.md §1 calls out as an external collaborator.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
)

type FileFlash struct {
	path string
}

func NewFileFlash(path string) *FileFlash {
	return &FileFlash{path: path}
}

// Write is atomic at the file level: write to a temp file, then rename
// over the target, so a crash mid-write never leaves a half-written slot.
func (f *FileFlash) Write(slot []byte) error {
	var tmp = f.path + ".tmp"
	if err := os.WriteFile(tmp, slot, 0o644); err != nil {
		return fmt.Errorf("fileflash: write temp: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("fileflash: rename: %w", err)
	}
	return nil
}

func (f *FileFlash) Read() ([]byte, error) {
	var data, err = os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("fileflash: read: %w", err)
	}
	return data, nil
}

func (f *FileFlash) Erase() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fileflash: erase: %w", err)
	}
	return nil
}
