package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/domain/problem"
	"github.com/solvegraph/solvegraph-backend/internal/domain/user"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
	"github.com/solvegraph/solvegraph-backend/internal/repos"
)

// RecordWriter applies one analysis payload to the relational store: ensure
// the user row, then the natural-key upsert with an appended snapshot. Used
// by both the synchronous analyze flow and the relational fan-out consumer,
// so duplicate deliveries of the same payload converge on one record.
type RecordWriter interface {
	Apply(ctx context.Context, payload analysis.RecordPayload) error
}

type recordWriter struct {
	db       *gorm.DB
	log      *logger.Logger
	users    repos.UserRepo
	problems repos.ProblemRepo
}

func NewRecordWriter(db *gorm.DB, baseLog *logger.Logger, users repos.UserRepo, problems repos.ProblemRepo) RecordWriter {
	return &recordWriter{
		db:       db,
		log:      baseLog.With("service", "RecordWriter"),
		users:    users,
		problems: problems,
	}
}

func (w *recordWriter) Apply(ctx context.Context, payload analysis.RecordPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	data := payload.AnalysisData

	pseudoCode, err := json.Marshal(data.PseudoCode)
	if err != nil {
		return fmt.Errorf("record writer: marshal pseudo code: %w", err)
	}
	tags, err := json.Marshal(data.Tags)
	if err != nil {
		return fmt.Errorf("record writer: marshal tags: %w", err)
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		username := payload.UserID
		if payload.UserDetails.Name != nil && strings.TrimSpace(*payload.UserDetails.Name) != "" {
			username = *payload.UserDetails.Name
		}
		// The email column is unique and non-null, so an absent email gets
		// a per-user placeholder instead of colliding on "".
		email := fmt.Sprintf("%s@placeholder.email", payload.UserID)
		if payload.UserDetails.Email != nil && strings.TrimSpace(*payload.UserDetails.Email) != "" {
			email = *payload.UserDetails.Email
		}
		if err := w.users.Ensure(ctx, tx, &user.User{
			ID:       payload.UserID,
			Username: username,
			Email:    email,
		}); err != nil {
			return fmt.Errorf("record writer: ensure user: %w", err)
		}

		_, err := w.problems.UpsertAnalysis(ctx, tx, repos.UpsertAnalysisInput{
			UserID:       payload.UserID,
			URL:          payload.Link,
			ApproachName: data.ApproachName,
			Name:         data.Name,
			Domain:       data.Domain(),
			KeyAlgorithm: data.KeyAlgorithm(),
			Difficulty:   string(data.Difficulty),
			Snapshot: problem.Analysis{
				PseudoCode: pseudoCode,
				Time:       data.Time,
				Space:      data.Space,
				Tags:       tags,
				Notes:      payload.Notes,
			},
		})
		if err != nil {
			return fmt.Errorf("record writer: upsert analysis: %w", err)
		}
		return nil
	})
}
