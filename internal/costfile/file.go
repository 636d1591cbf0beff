package costfile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/techmap/internal/model"
)

// BackupSuffix is appended to the previous output when a backup is kept.
const BackupSuffix = ".bak"

// Options configures Read and Write.
type Options struct {
	CSV  CSVOptions
	XLSX XLSXOptions
	// Backup keeps a copy of the file being replaced at path+BackupSuffix.
	Backup bool
}

// IsXLSX reports whether path names a workbook.
func IsXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func csvOptionsFor(path string, opts CSVOptions) CSVOptions {
	if opts.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
		opts.Delimiter = '\t'
	}
	return opts
}

// Read loads a cost table, choosing the format by extension.
func Read(ctx context.Context, path string, opts Options) (model.Dataset, error) {
	if IsXLSX(path) {
		return ReadXLSX(path, opts.XLSX)
	}

	f, err := os.Open(path)
	if err != nil {
		return model.Dataset{}, eris.Wrapf(err, "costfile: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	ds, err := ReadCSV(ctx, f, csvOptionsFor(path, opts.CSV))
	if err != nil {
		return model.Dataset{}, eris.Wrapf(err, "costfile: read %s", path)
	}
	return ds, nil
}

// Write replaces path with ds. The table is written to a temporary file in
// the same directory and renamed into place, so readers never see a partial
// file.
func Write(path string, ds model.Dataset, opts Options) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "costfile: create temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if IsXLSX(path) {
		if err := tmp.Close(); err != nil {
			return eris.Wrap(err, "costfile: close temp file")
		}
		if err := WriteXLSX(tmpPath, ds, opts.XLSX); err != nil {
			return err
		}
	} else {
		if err := WriteCSV(tmp, ds, csvOptionsFor(path, opts.CSV)); err != nil {
			tmp.Close() //nolint:errcheck
			return err
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrap(err, "costfile: sync temp file")
		}
		if err := tmp.Close(); err != nil {
			return eris.Wrap(err, "costfile: close temp file")
		}
	}

	if opts.Backup {
		backup, err := backupFile(path)
		if err != nil {
			return err
		}
		if backup != "" {
			zap.L().Info("costfile: previous output backed up",
				zap.String("path", path),
				zap.String("backup", backup),
			)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return eris.Wrapf(err, "costfile: replace %s", path)
	}
	return nil
}

// backupFile copies path to path+BackupSuffix. A missing file is not an
// error; the returned name is empty then.
func backupFile(path string) (string, error) {
	src, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "costfile: open %s for backup", path)
	}
	defer src.Close() //nolint:errcheck

	backup := path + BackupSuffix
	dst, err := os.Create(backup)
	if err != nil {
		return "", eris.Wrapf(err, "costfile: create backup %s", backup)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close() //nolint:errcheck
		return "", eris.Wrapf(err, "costfile: copy backup %s", backup)
	}
	if err := dst.Close(); err != nil {
		return "", eris.Wrapf(err, "costfile: close backup %s", backup)
	}
	return backup, nil
}
