// Package archive packages a rendered manifest set into a single tar.gz
// artifact. Output is deterministic: packaging the same set twice yields
// byte-identical archives, so artifact digests are reproducible.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/slipway-k8s/slipway/internal/manifest"
)

// Artifact describes a packaged archive on disk.
type Artifact struct {
	// Path is the archive location.
	Path string
	// SHA256 is the hex digest of the archive bytes.
	SHA256 string
	// Size is the archive size in bytes.
	Size int64
}

// Fixed header values keeping the archive byte-stable.
var epoch = time.Unix(0, 0).UTC()

// Pack writes the manifest set as <outDir>/<archiveName> with every file
// under the single rootDir, preserving set order in both member order and
// the numeric file-name prefixes. An empty set is an error; no partial file
// is left behind on any failure.
func Pack(set manifest.Set, rootDir, archiveName, outDir string) (Artifact, error) {
	if set.Empty() {
		return Artifact{}, fmt.Errorf("refusing to package an empty manifest set")
	}
	if rootDir == "" {
		return Artifact{}, fmt.Errorf("archive root directory name is empty")
	}
	if archiveName == "" {
		return Artifact{}, fmt.Errorf("archive file name is empty")
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create output dir %q: %w", outDir, err)
	}

	path := filepath.Join(outDir, archiveName)
	tmpPath := path + ".partial"

	f, err := os.Create(tmpPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("create archive %q: %w", tmpPath, err)
	}

	digest := sha256.New()
	if err := writeArchive(io.MultiWriter(f, digest), set, rootDir); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return Artifact{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Artifact{}, fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Artifact{}, fmt.Errorf("finalize archive %q: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat archive %q: %w", path, err)
	}

	return Artifact{
		Path:   path,
		SHA256: hex.EncodeToString(digest.Sum(nil)),
		Size:   info.Size(),
	}, nil
}

func writeArchive(w io.Writer, set manifest.Set, rootDir string) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	dirHeader := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     rootDir + "/",
		Mode:     0o755,
		ModTime:  epoch,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(dirHeader); err != nil {
		return fmt.Errorf("write root dir header: %w", err)
	}

	for i, m := range set.Manifests {
		name := m.FileName(i)
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     rootDir + "/" + name,
			Mode:     0o644,
			Size:     int64(len(m.Data)),
			ModTime:  epoch,
			Format:   tar.FormatUSTAR,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header for %q: %w", name, err)
		}
		if _, err := tw.Write(m.Data); err != nil {
			return fmt.Errorf("write %q: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar stream: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return nil
}

// FromFile computes the Artifact record for an existing archive, e.g. when
// publishing an archive packaged by an earlier stage run.
func FromFile(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("open archive %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	digest := sha256.New()
	size, err := io.Copy(digest, f)
	if err != nil {
		return Artifact{}, fmt.Errorf("read archive %q: %w", path, err)
	}

	return Artifact{
		Path:   path,
		SHA256: hex.EncodeToString(digest.Sum(nil)),
		Size:   size,
	}, nil
}
