// Package artifacts bundles the files a run leaves behind, JUnit output,
// captured application logs and crash evidence, into a single archive per
// run. Bundles are tar streams, brotli compressed unless configured off.
package artifacts

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
)

// Entry names one file to include in a bundle. Name is the path inside
// the archive; when empty the source file's base name is used.
type Entry struct {
	Name string
	Path string
}

// Bundler writes run bundles into a fixed directory.
type Bundler struct {
	dir      string
	compress bool
	logger   *zap.Logger
}

// NewBundler creates a bundler rooted at dir.
func NewBundler(dir string, compress bool, logger *zap.Logger) *Bundler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bundler{
		dir:      dir,
		compress: compress,
		logger:   logger.Named("artifacts"),
	}
}

// Bundle archives the given entries as run-<id>.tar[.br] and returns the
// written path. Missing source files are skipped with a warning so a run
// that produced no screenshots still gets its logs bundled.
func (b *Bundler) Bundle(runID string, entries []Entry) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory %s: %w", b.dir, err)
	}

	name := "run-" + runID + ".tar"
	if b.compress {
		name += ".br"
	}
	outPath := filepath.Join(b.dir, name)

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create bundle %s: %w", outPath, err)
	}

	var brWriter *brotli.Writer
	var tw *tar.Writer
	if b.compress {
		brWriter = brotli.NewWriter(out)
		tw = tar.NewWriter(brWriter)
	} else {
		tw = tar.NewWriter(out)
	}

	added := 0
	for _, entry := range entries {
		err := b.addFile(tw, entry)
		if os.IsNotExist(err) {
			b.logger.Warn("Skipping missing artifact.", zap.String("path", entry.Path))
			continue
		}
		if err != nil {
			out.Close()
			return "", err
		}
		added++
	}

	// Close innermost first so each layer flushes into the next.
	if err := tw.Close(); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	if brWriter != nil {
		if err := brWriter.Close(); err != nil {
			out.Close()
			return "", fmt.Errorf("failed to finalize compression: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close bundle: %w", err)
	}

	b.logger.Info("Wrote artifact bundle.",
		zap.String("path", outPath),
		zap.Int("files", added),
	)
	return outPath, nil
}

func (b *Bundler) addFile(tw *tar.Writer, entry Entry) error {
	f, err := os.Open(entry.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", entry.Path, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", entry.Path, err)
	}
	hdr.Name = entry.Name
	if hdr.Name == "" {
		hdr.Name = filepath.Base(entry.Path)
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", entry.Path, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", entry.Path, err)
	}
	return nil
}

// List returns the entry names inside a bundle, in archive order.
func List(bundlePath string) ([]string, error) {
	f, err := os.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", bundlePath, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(bundlePath, ".br") {
		reader = brotli.NewReader(f)
	}

	tr := tar.NewReader(reader)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle %s: %w", bundlePath, err)
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}

// Read returns the contents of one entry in a bundle.
func Read(bundlePath, name string) ([]byte, error) {
	f, err := os.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", bundlePath, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(bundlePath, ".br") {
		reader = brotli.NewReader(f)
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle %s: %w", bundlePath, err)
		}
		if hdr.Name == name {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read entry %s: %w", name, err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("entry %s not found in bundle %s", name, bundlePath)
}
