package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"

	memerrors "memstore/internal/errors"
	"memstore/internal/paths"
)

// Backup labels
const (
	LabelCorrupt    = "corrupt"
	LabelPreMigrate = "pre_migrate"
)

// QuickCheck runs PRAGMA quick_check. Every diagnostic row other than "ok"
// is collected into the returned error.
func QuickCheck(ctx context.Context, conn *sql.DB) error {
	rows, err := conn.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return fmt.Errorf("quick_check: %w", err)
		}
		if !strings.EqualFold(strings.TrimSpace(msg), "ok") {
			problems = append(problems, msg)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("quick_check: %s", strings.Join(problems, "; "))
	}
	return nil
}

// guardIntegrity checks a pre-existing file through a probe connection that
// carries no pragmas which touch the file, so a corrupt or too-new database
// is never written to. On a failed check the file is copied aside and
// IntegrityFailure is returned; the original is left in place for manual
// recovery. A stored version above the target yields SchemaIncompatible.
func guardIntegrity(ctx context.Context, path string, opts Options, logger *slog.Logger) error {
	probe, err := sql.Open(driverName, dsn(path, opts.BusyTimeout, false))
	if err != nil {
		return memerrors.New(memerrors.IOError, "open integrity probe", err)
	}
	probe.SetMaxOpenConns(1)

	checkErr := QuickCheck(ctx, probe)
	if checkErr == nil {
		current, err := readSchemaVersion(ctx, probe)
		_ = probe.Close()
		if err != nil {
			return err
		}
		if current > opts.Schema.Version {
			return schemaTooNew(current, opts.Schema.Version)
		}
		return nil
	}
	_ = probe.Close()

	integrityFailuresTotal.Inc()
	logger.Error("Integrity check failed", "error", checkErr.Error())

	backup, bErr := backupFile(opts.Fs, path, LabelCorrupt, opts.Clock().UnixMilli(), logger)
	if bErr != nil {
		return memerrors.New(memerrors.IntegrityFailure,
			fmt.Sprintf("memory db integrity check failed and backup failed (%v)", bErr), checkErr)
	}
	return memerrors.New(memerrors.IntegrityFailure, "memory db integrity check failed", checkErr).
		WithDetails(map[string]string{"backup": backup})
}

// backupFile copies path to its sibling backup name and returns that name.
func backupFile(fs afero.Fs, path, label string, stamp int64, logger *slog.Logger) (string, error) {
	dest := paths.BackupPath(path, label, stamp)

	src, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	out, err := fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = fs.Remove(dest)
		return "", fmt.Errorf("copy to %s: %w", dest, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("sync %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", dest, err)
	}

	backupsTotal.WithLabelValues(label).Inc()
	logger.Warn("Wrote database backup", "label", label, "backup", dest)
	return dest, nil
}
