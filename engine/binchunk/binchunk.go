// Package binchunk splits binary files into fixed-size byte blocks whose
// in-order concatenation reproduces the original file exactly.
package binchunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// WriteFunc receives each block in order; index starts at 1.
type WriteFunc func(index int, block []byte) error

// ChunkFile reads the file sequentially in maxBytes-sized blocks, passing
// each to write. No overlap is applied and no byte is transformed.
func ChunkFile(ctx context.Context, path string, maxBytes int, write WriteFunc) (int, error) {
	if maxBytes <= 0 {
		return 0, errors.New("binchunk: max bytes must be greater than zero")
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("binchunk: open %q: %w", path, err)
	}
	defer file.Close()
	buf := make([]byte, maxBytes)
	blocks := 0
	for {
		if err := ctx.Err(); err != nil {
			return blocks, err
		}
		n, err := io.ReadFull(file, buf)
		if n > 0 {
			blocks++
			if werr := write(blocks, buf[:n]); werr != nil {
				return blocks, fmt.Errorf("binchunk: write block %d: %w", blocks, werr)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return blocks, nil
		}
		if err != nil {
			return blocks, fmt.Errorf("binchunk: read %q: %w", path, err)
		}
	}
}
