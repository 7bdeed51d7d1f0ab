// Package archive inspects and unpacks source archives.
package archive

import (
	"archive/tar"
	"compress/bzip2"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"

	"taucmdr/internal/ui"
)

// ErrUnsupported is returned for files whose extension names no known format.
var ErrUnsupported = errors.New("unsupported archive format")

// Format is an archive container/compression pair.
type Format int

const (
	Unknown Format = iota
	Tar
	TarGz
	TarBz2
	TarXz
	TarZst
	Zip
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGz},
	{".tgz", TarGz},
	{".tar.bz2", TarBz2},
	{".tbz2", TarBz2},
	{".tar.xz", TarXz},
	{".txz", TarXz},
	{".tar.zst", TarZst},
	{".tar", Tar},
	{".zip", Zip},
}

// Detect returns the format named by path's extension.
func Detect(path string) Format {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return Unknown
}

// TopLevel returns the single top-level directory shared by every entry of
// the archive. Only headers are read. A truncated or corrupt archive, or one
// without a common top-level directory, is an error.
func TopLevel(path string) (string, error) {
	var names []string
	switch Detect(path) {
	case Zip:
		r, err := zip.OpenReader(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer r.Close()
		for _, f := range r.File {
			names = append(names, f.Name)
		}
	case Unknown:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupported)
	default:
		err := walkTar(path, func(hdr *tar.Header, _ io.Reader) error {
			names = append(names, hdr.Name)
			return nil
		})
		if err != nil {
			return "", err
		}
	}

	var top string
	for _, name := range names {
		first := firstComponent(name)
		if first == "" {
			continue
		}
		if top == "" {
			top = first
			continue
		}
		if first != top {
			return "", fmt.Errorf("%s: entries %q and %q have no common top-level directory", path, top, first)
		}
	}
	if top == "" {
		return "", fmt.Errorf("%s: archive is empty", path)
	}
	return top, nil
}

func firstComponent(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	name = strings.TrimLeft(name, "/")
	first, _, _ := strings.Cut(name, "/")
	return first
}

// Extract unpacks the archive at path into dest and returns dest joined with
// the archive's top-level directory. The system tar is tried first; the
// pure-Go readers are the fallback.
func Extract(path, dest string, log *ui.Logger) (string, error) {
	top, err := TopLevel(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	format := Detect(path)

	if format != Zip {
		if _, err := exec.LookPath("tar"); err == nil {
			out, err := exec.Command("tar", "xf", path, "-C", dest).CombinedOutput()
			if err == nil {
				log.Debugf("Used system tar for %s", path)
				return filepath.Join(dest, top), nil
			}
			log.Debugf("system tar failed on %s: %v: %s", path, err, strings.TrimSpace(string(out)))
		}
		log.Debugf("Falling back to internal extraction for %s", path)
		if err := extractTar(path, dest, log); err != nil {
			return "", err
		}
		return filepath.Join(dest, top), nil
	}

	if err := unzip(path, dest); err != nil {
		return "", err
	}
	return filepath.Join(dest, top), nil
}

// Digest returns the hex blake3-256 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// walkTar calls fn for each content entry of a (possibly compressed) tar.
func walkTar(path string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch Detect(path) {
	case TarGz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case TarBz2:
		r = bzip2.NewReader(f)
	case TarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", path, err)
		}
		r = xr
	case TarZst:
		zst, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		defer zst.Close()
		r = zst
	case Tar:
		// No compression
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupported)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", path, err)
		}
		// Skip PAX headers (global or per-file)
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// within resolves name under dest, rejecting entries that escape it.
func within(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return target, nil
}

func extractTar(path, dest string, log *ui.Logger) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	return walkTar(path, func(hdr *tar.Header, r io.Reader) error {
		target, err := within(dest, hdr.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", target, err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, r); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
			if err := os.Chtimes(target, hdr.AccessTime, hdr.ModTime); err != nil {
				log.Debugf("failed to set times for %s: %v", target, err)
			}
		case tar.TypeSymlink:
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		case tar.TypeLink:
			src, err := within(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := unix.Link(src, target); err != nil {
				return fmt.Errorf("failed to link %s -> %s: %w", target, src, err)
			}
		default:
			log.Debugf("Skipping unsupported tar entry type %c: %s", hdr.Typeflag, hdr.Name)
		}
		return nil
	})
}

func unzip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		fpath, err := within(dest, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, os.ModePerm); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)

		// Close inside the loop to avoid holding too many descriptors.
		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}
	return nil
}
