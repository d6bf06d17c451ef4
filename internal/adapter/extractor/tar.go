package extractor

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"sharpinstall/internal/domain"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// nestedOutput is the build-output subpath some archives carry.
var nestedOutput = filepath.Join("build", "Release")

// TarInstaller unpacks prebuilt tar archives in-process. The compression
// layer (gzip, zstd, lz4 or none) is detected from the leading magic bytes.
type TarInstaller struct {
	logger domain.Logger
}

// NewTarInstaller creates an archive installer.
func NewTarInstaller(logger domain.Logger) *TarInstaller {
	return &TarInstaller{logger: logger}
}

// Install extracts archivePath into targetDir, hoists build/Release into
// targetDir and removes the archive together with its staging directory.
// Every write goes through an os.Root on targetDir, so no entry, however
// its links are chained, lands outside it. On extraction failure targetDir
// is left as the decoder left it.
func (e *TarInstaller) Install(ctx context.Context, archivePath, targetDir string) error {
	log := domain.LoggerFromContext(ctx, e.logger)
	log.Info("extracting archive", "archive", archivePath, "target", targetDir)

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return &domain.ExtractError{Archive: archivePath, Err: fmt.Errorf("create target dir: %w", err)}
	}
	root, err := os.OpenRoot(targetDir)
	if err != nil {
		return &domain.ExtractError{Archive: archivePath, Err: err}
	}
	defer root.Close()

	n, err := extract(archivePath, root)
	if err != nil {
		return &domain.ExtractError{Archive: archivePath, Err: err}
	}
	if err := normalize(root); err != nil {
		return &domain.ExtractError{Archive: archivePath, Err: fmt.Errorf("normalize: %w", err)}
	}

	cleanup(log, archivePath, targetDir)
	log.Info("extraction complete", "path", targetDir, "entries", n)
	return nil
}

func cleanup(log domain.Logger, archivePath, targetDir string) {
	if err := os.Remove(archivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove archive failed", "path", archivePath, "err", err)
	}
	staging := filepath.Dir(archivePath)
	if within(staging, targetDir) {
		return
	}
	if err := os.RemoveAll(staging); err != nil {
		log.Warn("remove staging dir failed", "path", staging, "err", err)
	}
}

func extract(archivePath string, root *os.Root) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r, closeFn, err := decompressor(bufio.NewReader(f))
	if err != nil {
		return 0, err
	}
	defer closeFn()

	// symlink targets are checked against the resolved root
	realRoot, err := filepath.EvalSymlinks(root.Name())
	if err != nil {
		return 0, err
	}

	tr := tar.NewReader(r)
	n := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read tar: %w", err)
		}
		if err := writeEntry(tr, hdr, root, realRoot); err != nil {
			return n, fmt.Errorf("%s: %w", hdr.Name, err)
		}
		n++
	}
	if n == 0 {
		return 0, errors.New("archive has no entries")
	}
	return n, nil
}

func decompressor(br *bufio.Reader) (io.Reader, func(), error) {
	magic, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case bytes.HasPrefix(magic, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return dec, dec.Close, nil
	case bytes.HasPrefix(magic, lz4Magic):
		return lz4.NewReader(br), func() {}, nil
	default:
		return br, func() {}, nil
	}
}

// writeEntry materializes one header below root. realRoot is root's path
// with symlinks resolved.
func writeEntry(tr *tar.Reader, hdr *tar.Header, root *os.Root, realRoot string) error {
	name, err := entryPath(hdr.Name)
	if err != nil {
		return err
	}
	if name == "." && hdr.Typeflag != tar.TypeDir {
		return errors.New("entry names the archive root")
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return root.MkdirAll(name, 0o755)

	case tar.TypeReg:
		if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return err
		}
		if err := root.RemoveAll(name); err != nil {
			return err
		}
		mode := hdr.FileInfo().Mode().Perm() | 0o600
		out, err := root.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(out, tr)
		return errors.Join(copyErr, out.Close())

	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) || strings.HasPrefix(hdr.Linkname, "/") {
			return fmt.Errorf("absolute symlink target %q", hdr.Linkname)
		}
		if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return err
		}
		// resolve against the parent as it exists on disk, which may itself
		// be reached through links written by earlier entries
		parent, err := filepath.EvalSymlinks(filepath.Join(root.Name(), filepath.Dir(name)))
		if err != nil {
			return err
		}
		if !within(realRoot, filepath.Join(parent, filepath.FromSlash(hdr.Linkname))) {
			return fmt.Errorf("symlink target %q escapes archive root", hdr.Linkname)
		}
		if err := root.RemoveAll(name); err != nil {
			return err
		}
		return root.Symlink(hdr.Linkname, name)

	case tar.TypeLink:
		source, err := entryPath(hdr.Linkname)
		if err != nil {
			return err
		}
		if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return err
		}
		if err := root.RemoveAll(name); err != nil {
			return err
		}
		return root.Link(source, name)

	default:
		// devices, fifos and global headers carry nothing we install
		return nil
	}
}

// entryPath cleans an archive path into a root-relative one, refusing paths
// that leave the root lexically.
func entryPath(name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute path %q in archive", name)
	}
	rel := filepath.Clean(filepath.FromSlash(name))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes archive root", name)
	}
	return rel, nil
}

// within reports whether path is root or lies beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// normalize moves build/Release/* up to the root and drops the emptied
// directories.
func normalize(root *os.Root) error {
	entries, err := readDir(root, nestedOutput)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		// build is the directory being flattened
		if entry.Name() == "build" {
			continue
		}
		if err := root.RemoveAll(entry.Name()); err != nil {
			return err
		}
		if err := root.Rename(filepath.Join(nestedOutput, entry.Name()), entry.Name()); err != nil {
			return err
		}
	}

	if err := root.Remove(nestedOutput); err != nil {
		return err
	}
	buildDir := filepath.Dir(nestedOutput)
	if rest, err := readDir(root, buildDir); err == nil && len(rest) == 0 {
		return root.Remove(buildDir)
	}
	return nil
}

func readDir(root *os.Root, name string) ([]os.DirEntry, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDir(-1)
}
