package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	memerrors "memstore/internal/errors"
)

// SnapshotResult describes a written snapshot.
type SnapshotResult struct {
	Path       string `json:"path"`
	Bytes      int64  `json:"bytes"`
	Compressed bool   `json:"compressed"`
}

// Snapshot writes a consistent copy of the database to dest. The WAL is
// checkpointed first and the copy is produced with VACUUM INTO, so dest is
// a standalone, defragmented database. With compress the copy is written
// as a zstd stream instead. dest must not exist.
func (db *DB) Snapshot(ctx context.Context, dest string, compress bool) (SnapshotResult, error) {
	fs := db.opts.Fs

	if exists, err := fileExists(fs, dest); err != nil {
		return SnapshotResult{}, memerrors.New(memerrors.IOError, "check snapshot destination", err)
	} else if exists {
		return SnapshotResult{}, memerrors.Newf(memerrors.InvalidInput, "snapshot destination already exists: %s", dest)
	}

	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return SnapshotResult{}, memerrors.New(memerrors.IOError, "checkpoint before snapshot", err)
	}

	target := dest
	if compress {
		target = dest + ".tmp-" + strconv.FormatInt(db.opts.Clock().UnixNano(), 10)
	}
	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return SnapshotResult{}, memerrors.New(memerrors.IOError, "vacuum into snapshot", err)
	}

	if !compress {
		info, err := fs.Stat(dest)
		if err != nil {
			return SnapshotResult{}, memerrors.New(memerrors.IOError, "stat snapshot", err)
		}
		db.logger.Info("Wrote snapshot", "snapshot", dest, "bytes", info.Size())
		return SnapshotResult{Path: dest, Bytes: info.Size()}, nil
	}

	defer func() { _ = fs.Remove(target) }()
	n, err := compressFile(fs, target, dest)
	if err != nil {
		_ = fs.Remove(dest)
		return SnapshotResult{}, memerrors.New(memerrors.IOError, "compress snapshot", err)
	}
	db.logger.Info("Wrote snapshot", "snapshot", dest, "bytes", n, "compressed", true)
	return SnapshotResult{Path: dest, Bytes: n, Compressed: true}, nil
}

func compressFile(fs afero.Fs, src, dest string) (int64, error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	counter := &countingWriter{w: out}

	enc, err := zstd.NewWriter(counter)
	if err != nil {
		_ = out.Close()
		return 0, err
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		_ = out.Close()
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := enc.Close(); err != nil {
		_ = out.Close()
		return 0, err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return 0, err
	}
	return counter.n, out.Close()
}

// DecompressSnapshot expands a zstd snapshot at src into a database at dest.
func DecompressSnapshot(fs afero.Fs, src, dest string) (int64, error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, memerrors.New(memerrors.IOError, "open snapshot", err)
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return 0, memerrors.New(memerrors.SerializationError, "read snapshot header", err)
	}
	defer dec.Close()

	out, err := fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, memerrors.New(memerrors.IOError, "create restored database", err)
	}
	n, err := io.Copy(out, dec)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = fs.Remove(dest)
		return 0, memerrors.New(memerrors.SerializationError, "decompress snapshot", err)
	}
	return n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
