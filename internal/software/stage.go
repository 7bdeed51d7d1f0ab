package software

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"taucmdr/internal/archive"
	"taucmdr/internal/errs"
)

// stage acquires and unpacks the source archive under buildPrefix, setting
// SrcPrefix. An unreadable archive found with reuse set is fetched again
// once; a second failure is final.
func (inst *Installation) stage(ctx context.Context, buildPrefix string, reuse bool) (string, error) {
	log := inst.log()
	var archivePath, top string
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		archivePath, err = inst.acquire(ctx, buildPrefix, reuse)
		if err != nil {
			return "", err
		}
		top, err = archive.TopLevel(archivePath)
		if err == nil {
			break
		}
		log.Debugf("Cannot read %s archive file '%s': %v", inst.Title, archivePath, err)
		if !reuse {
			return "", &errs.ConfigurationError{
				Value: fmt.Sprintf("Cannot read %s archive file '%s': %v", inst.Title, archivePath, err),
				Err:   err,
			}
		}
		log.Debugf("Downloading a fresh copy of '%s'", inst.Src)
		reuse = false
	}

	srcPrefix := filepath.Join(buildPrefix, top)
	if reuse && isDir(srcPrefix) {
		log.Infof("Reusing %s source files found at '%s'", inst.Title, srcPrefix)
	} else {
		if err := os.RemoveAll(srcPrefix); err != nil {
			log.Debugf("Cannot remove stale '%s': %v", srcPrefix, err)
		}
		var err error
		srcPrefix, err = archive.Extract(archivePath, buildPrefix, log)
		if err != nil {
			return "", &errs.ConfigurationError{
				Value: fmt.Sprintf("Cannot extract source archive '%s': %v", archivePath, err),
				Hints: []string{"Check that the file or directory is accessible"},
				Err:   err,
			}
		}
	}
	if abs, err := filepath.Abs(srcPrefix); err == nil {
		srcPrefix = abs
	}
	inst.SrcPrefix = srcPrefix
	return srcPrefix, nil
}
