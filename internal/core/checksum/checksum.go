package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/Ning0612/relocator/internal/adapter"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 algorithm (faster, enough to tell two local copies apart)
	MD5 Algorithm = "md5"
	// SHA256 algorithm (default)
	SHA256 Algorithm = "sha256"
)

// Options configures the checksum calculator
type Options struct {
	// MaxSize: content longer than this is rejected (0 = unlimited)
	MaxSize int64

	// BufferSize: size of buffer for streaming reads
	// Default: 32KB
	BufferSize int
}

// DefaultOptions returns options suitable for comparing migrated files of any size
func DefaultOptions() Options {
	return Options{
		MaxSize:    0,
		BufferSize: 32 * 1024,
	}
}

// Calculator computes content checksums
type Calculator interface {
	// Calculate computes checksum from an io.Reader
	Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error)
}

// DefaultCalculator implements Calculator with streaming support
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	}
	return nil, fmt.Errorf("unsupported algorithm: %s", algo)
}

// Calculate implements the Calculator interface
func (c *DefaultCalculator) Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	if c.opts.MaxSize > 0 {
		reader = io.LimitReader(reader, c.opts.MaxSize+1)
	}

	buffer := make([]byte, c.opts.BufferSize)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, readErr := reader.Read(buffer)
		if n > 0 {
			total += int64(n)
			if c.opts.MaxSize > 0 && total > c.opts.MaxSize {
				return "", fmt.Errorf("content exceeds maximum (%d bytes)", c.opts.MaxSize)
			}
			h.Write(buffer[:n])
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read error: %w", readErr)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// File computes the checksum of the file at path
func (c *DefaultCalculator) File(ctx context.Context, fs adapter.FileSystem, path string, algo Algorithm) (string, error) {
	reader, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	return c.Calculate(ctx, reader, algo)
}

// FilesEqual reports whether two files have identical content.
// Sizes are compared first so differing files are rarely read.
func (c *DefaultCalculator) FilesEqual(ctx context.Context, fs adapter.FileSystem, a, b string) (bool, error) {
	infoA, err := fs.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := fs.Stat(b)
	if err != nil {
		return false, err
	}
	if infoA.Size != infoB.Size {
		return false, nil
	}

	sumA, err := c.File(ctx, fs, a, SHA256)
	if err != nil {
		return false, fmt.Errorf("checksum of %s: %w", a, err)
	}
	sumB, err := c.File(ctx, fs, b, SHA256)
	if err != nil {
		return false, fmt.Errorf("checksum of %s: %w", b, err)
	}
	return sumA == sumB, nil
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	_, err := newHash(algo)
	return err == nil
}
