package software

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"taucmdr/internal/archive"
	"taucmdr/internal/errs"
)

// DigestSuffix is appended to a cached archive's name for its blake3 sidecar.
const DigestSuffix = ".b3"

// archiveName is the file name of the archive a source specifier points to.
func archiveName(src string) string {
	if u, err := url.Parse(src); err == nil && u.Scheme != "" && u.Path != "" {
		return path.Base(u.Path)
	}
	return filepath.Base(src)
}

// acquire puts the source archive into targetDir and returns its path. With
// reuse set, cached archives in every level's src directory are tried
// first. Fresh downloads are mirrored into the highest writable level's
// cache.
func (inst *Installation) acquire(ctx context.Context, targetDir string, reuse bool) (string, error) {
	if inst.Src == "" {
		return "", errs.Configurationf("No source code provided for %s", inst.Title)
	}
	log := inst.log()
	name := archiveName(inst.Src)
	dest := filepath.Join(targetDir, name)

	if reuse {
		for _, lvl := range inst.opts.Levels.Search() {
			cached := filepath.Join(lvl.ArchiveDir(), name)
			if !readable(cached) {
				continue
			}
			if !digestMatches(cached) {
				log.Debugf("Ignoring '%s': digest does not match", cached)
				continue
			}
			log.Infof("Using %s source archive '%s'", inst.Title, cached)
			if filepath.Clean(lvl.ArchiveDir()) == filepath.Clean(targetDir) {
				return cached, nil
			}
			log.Debugf("Copying '%s' ==> '%s'", name, targetDir)
			if err := inst.opts.Fetcher.Download(ctx, cached, dest); err != nil {
				return "", acquireError(inst.Src, err)
			}
			return dest, nil
		}
	}

	cacheLevel, err := inst.opts.Levels.HighestWritable()
	if err != nil {
		return "", err
	}
	log.Infof("Downloading %s from '%s'", inst.Title, inst.Src)
	if err := inst.opts.Fetcher.Download(ctx, inst.Src, dest); err != nil {
		return "", acquireError(inst.Src, err)
	}

	cacheDir := cacheLevel.ArchiveDir()
	cached := filepath.Join(cacheDir, name)
	if filepath.Clean(cacheDir) != filepath.Clean(targetDir) {
		log.Debugf("Copying '%s' ==> '%s'", name, cacheDir)
		if err := inst.opts.Fetcher.Download(ctx, dest, cached); err != nil {
			log.Warnf("Cannot cache %s source archive in '%s': %v", inst.Title, cacheDir, err)
			return dest, nil
		}
	}
	if err := writeDigest(cached); err != nil {
		log.Warnf("Cannot record digest of '%s': %v", cached, err)
	}
	return dest, nil
}

func acquireError(src string, err error) error {
	return &errs.ConfigurationError{
		Value: fmt.Sprintf("Cannot acquire source archive '%s'", src),
		Hints: []string{"Check that the file or directory is accessible"},
		Err:   err,
	}
}

func writeDigest(archivePath string) error {
	sum, err := archive.Digest(archivePath)
	if err != nil {
		return err
	}
	return os.WriteFile(archivePath+DigestSuffix, []byte(sum+"\n"), 0o644)
}

// digestMatches reports whether archivePath matches its sidecar. Archives
// without a sidecar are trusted.
func digestMatches(archivePath string) bool {
	want, err := os.ReadFile(archivePath + DigestSuffix)
	if err != nil {
		return true
	}
	got, err := archive.Digest(archivePath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(want)) == got
}
