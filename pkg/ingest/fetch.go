package ingest

import (
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Compression kinds detected from magic bytes.
const (
	CompressionNone  = ""
	CompressionGzip  = "gzip"
	CompressionBzip2 = "bzip2"
	CompressionZstd  = "zstd"
	CompressionXz    = "xz"
)

// FetchedFile is a materialized local copy of an input.
type FetchedFile struct {
	LocalPath    string           `json:"local_path"`
	OriginalName string           `json:"original_name"`
	Source       SourceDescriptor `json:"source"`
	SizeBytes    int64            `json:"size_bytes"`
	ContentHash  string           `json:"content_hash"`
	FetchTS      time.Time        `json:"fetch_ts"`
	Compression  string           `json:"compression"`
}

// Fetcher downloads or copies inputs into the workspace ingested dir.
type Fetcher struct {
	dir    string
	client *http.Client
}

// NewFetcher creates a fetcher writing under dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		dir:    dir,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Fetch materializes a source into the ingested directory. Fetching a
// local path already inside the ingested directory is a no-op copy:
// the existing file is described in place.
func (f *Fetcher) Fetch(ctx context.Context, src SourceDescriptor) (*FetchedFile, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ingest directory: %w", err)
	}

	switch src.Kind {
	case SourceLocalPath, SourceUploadTemp:
		return f.fetchLocal(src)
	case SourceHTTPURL:
		return f.fetchHTTP(ctx, src)
	case SourceInline:
		return f.fetchInline(src)
	case SourceS3URI, SourceGCSURI:
		return nil, fmt.Errorf("bucket fetch for %s requires a configured cloud fetch tool", src.Location)
	}
	return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
}

func (f *Fetcher) fetchLocal(src SourceDescriptor) (*FetchedFile, error) {
	info, err := os.Stat(src.Location)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", src.Location, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", src.Location)
	}

	absSrc, err := filepath.Abs(src.Location)
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(f.dir)
	if err != nil {
		return nil, err
	}

	// Already ingested: describe in place, no duplicate copy.
	if filepath.Dir(absSrc) == absDir {
		return f.describe(absSrc, filepath.Base(absSrc), src)
	}

	dst := f.collisionFree(filepath.Base(src.Location))
	if err := copyFile(absSrc, dst); err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", src.Location, err)
	}
	return f.describe(dst, filepath.Base(src.Location), src)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src SourceDescriptor) (*FetchedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", src.Location, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s returned HTTP %d", src.Location, resp.StatusCode)
	}

	name := filepath.Base(strings.SplitN(src.Location, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "download"
	}

	dst := f.collisionFree(name)
	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return nil, fmt.Errorf("download interrupted: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return f.describe(dst, name, src)
}

func (f *Fetcher) fetchInline(src SourceDescriptor) (*FetchedFile, error) {
	name := src.Name
	if name == "" {
		name = "inline.txt"
	}
	dst := f.collisionFree(name)
	if err := os.WriteFile(dst, src.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write inline data: %w", err)
	}
	return f.describe(dst, name, src)
}

// describe computes hash, size and compression for a materialized file.
func (f *Fetcher) describe(path, originalName string, src SourceDescriptor) (*FetchedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	compression, err := detectCompression(path)
	if err != nil {
		return nil, err
	}

	return &FetchedFile{
		LocalPath:    path,
		OriginalName: originalName,
		Source:       src,
		SizeBytes:    info.Size(),
		ContentHash:  hash,
		FetchTS:      time.Now(),
		Compression:  compression,
	}, nil
}

// collisionFree returns a destination path under the ingest dir, adding
// a numeric suffix when the name is taken.
func (f *Fetcher) collisionFree(name string) string {
	dst := filepath.Join(f.dir, name)
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return dst
	}

	ext := fullExt(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(f.dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// fullExt returns the extension including a compression suffix, so
// "reads.fastq.gz" keeps ".fastq.gz" intact through renaming.
func fullExt(name string) string {
	ext := filepath.Ext(name)
	switch ext {
	case ".gz", ".bz2", ".zst", ".xz":
		inner := filepath.Ext(strings.TrimSuffix(name, ext))
		return inner + ext
	}
	return ext
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// detectCompression sniffs magic bytes.
func detectCompression(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	magic := make([]byte, 6)
	n, err := file.Read(magic)
	if err != nil && err != io.EOF {
		return "", err
	}
	magic = magic[:n]

	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		return CompressionGzip, nil
	case len(magic) >= 3 && magic[0] == 'B' && magic[1] == 'Z' && magic[2] == 'h':
		return CompressionBzip2, nil
	case len(magic) >= 4 && magic[0] == 0x28 && magic[1] == 0xb5 && magic[2] == 0x2f && magic[3] == 0xfd:
		return CompressionZstd, nil
	case len(magic) >= 6 && magic[0] == 0xfd && magic[1] == '7' && magic[2] == 'z' && magic[3] == 'X' && magic[4] == 'Z':
		return CompressionXz, nil
	}
	return CompressionNone, nil
}

// OpenReader opens a fetched file, transparently decompressing gzip and
// zstd. The returned closer must be closed by the caller.
func OpenReader(ff *FetchedFile) (io.ReadCloser, error) {
	file, err := os.Open(ff.LocalPath)
	if err != nil {
		return nil, err
	}

	switch ff.Compression {
	case CompressionGzip:
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return &wrappedCloser{Reader: gz, closers: []io.Closer{gz, file}}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return &wrappedCloser{Reader: zr.IOReadCloser(), closers: []io.Closer{zr.IOReadCloser(), file}}, nil
	case CompressionBzip2, CompressionXz:
		_ = file.Close()
		return nil, fmt.Errorf("%s decompression is not supported; decompress before ingesting", ff.Compression)
	}
	return file, nil
}

type wrappedCloser struct {
	io.Reader
	closers []io.Closer
}

func (w *wrappedCloser) Close() error {
	var firstErr error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
