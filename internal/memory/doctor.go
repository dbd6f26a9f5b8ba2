package memory

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	memerrors "memstore/internal/errors"
	"memstore/internal/storage"
)

// Check statuses
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// DoctorReport is the result of checking every scope database.
type DoctorReport struct {
	Healthy    bool         `json:"healthy" yaml:"healthy"`
	Checks     []ScopeCheck `json:"checks" yaml:"checks"`
	DurationMs int64        `json:"durationMs" yaml:"duration_ms"`
}

// ScopeCheck is the outcome for one scope database.
type ScopeCheck struct {
	Scope         string `json:"scope" yaml:"scope"`
	Path          string `json:"path" yaml:"path"`
	Size          int64  `json:"size" yaml:"size"`
	Status        string `json:"status" yaml:"status"` // "pass", "fail"
	Code          string `json:"code,omitempty" yaml:"code,omitempty"`
	Message       string `json:"message,omitempty" yaml:"message,omitempty"`
	Backup        string `json:"backup,omitempty" yaml:"backup,omitempty"`
	SchemaVersion int    `json:"schemaVersion,omitempty" yaml:"schema_version,omitempty"`
	Memories      int    `json:"memories" yaml:"memories"`
	Templates     int    `json:"templates" yaml:"templates"`
}

// CheckAll opens every scope database found in the data directory and runs
// quick_check on it, at most concurrency at a time. Opening goes through the
// provider, so a corrupt file is backed up and reported as a failed check.
// A per-scope failure never aborts the other checks.
func (s *Service) CheckAll(ctx context.Context, concurrency int) (*DoctorReport, error) {
	start := time.Now()

	files, err := s.ListScopes(ctx)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	checks := make([]ScopeCheck, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			checks[i] = s.checkScope(gctx, file)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	healthy := true
	for _, c := range checks {
		if c.Status != StatusPass {
			healthy = false
			s.logger.Warn("Scope database check failed", "scope", c.Scope, "code", c.Code, "message", c.Message)
		}
	}

	return &DoctorReport{
		Healthy:    healthy,
		Checks:     checks,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

func (s *Service) checkScope(ctx context.Context, file storage.ScopeFile) ScopeCheck {
	check := ScopeCheck{Scope: file.Key, Path: file.Path, Size: file.Size}

	err := s.withScope(ctx, file.Key, func(db *storage.DB) error {
		if err := storage.QuickCheck(ctx, db.Conn()); err != nil {
			return memerrors.New(memerrors.IntegrityFailure, "memory db integrity check failed", err)
		}

		var err error
		if check.SchemaVersion, err = db.SchemaVersion(ctx); err != nil {
			return err
		}
		if check.Memories, err = storage.NewMemoryRepository(db, s.ids).Count(ctx); err != nil {
			return err
		}
		check.Templates, err = storage.NewTemplateRepository(db).Count(ctx)
		return err
	})
	if err == nil {
		check.Status = StatusPass
		return check
	}

	check.Status = StatusFail
	check.Code = string(memerrors.CodeOf(err))
	check.Message = err.Error()

	var me *memerrors.MemError
	if errors.As(err, &me) {
		if details, ok := me.Details.(map[string]string); ok {
			check.Backup = details["backup"]
		}
	}
	return check
}
