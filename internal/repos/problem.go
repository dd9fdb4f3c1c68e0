package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/solvegraph/solvegraph-backend/internal/domain/problem"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

// UpsertAnalysisInput carries everything needed for one idempotent write.
// (UserID, URL, ApproachName) is the natural key; the remaining metadata is
// overwritten on resubmission while Snapshot is always appended.
type UpsertAnalysisInput struct {
	UserID       string
	URL          string
	ApproachName string

	Name         string
	Domain       string
	KeyAlgorithm string
	Difficulty   string

	Snapshot problem.Analysis
}

type ProblemRepo interface {
	UpsertAnalysis(ctx context.Context, tx *gorm.DB, in UpsertAnalysisInput) (*problem.Problem, error)
	GetByNaturalKey(ctx context.Context, tx *gorm.DB, userID, url, approachName string) (*problem.Problem, error)
}

type problemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProblemRepo(db *gorm.DB, baseLog *logger.Logger) ProblemRepo {
	return &problemRepo{db: db, log: baseLog.With("repo", "ProblemRepo")}
}

func (pr *problemRepo) UpsertAnalysis(ctx context.Context, tx *gorm.DB, in UpsertAnalysisInput) (*problem.Problem, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var out *problem.Problem
	err := transaction.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var existing problem.Problem
		err := txn.
			Where("user_id = ? AND url = ? AND approach_name = ?", in.UserID, in.URL, in.ApproachName).
			First(&existing).Error

		switch {
		case err == nil:
			existing.Name = in.Name
			existing.Domain = in.Domain
			existing.KeyAlgorithm = in.KeyAlgorithm
			existing.Difficulty = in.Difficulty
			if err := txn.Save(&existing).Error; err != nil {
				return err
			}
			snap := in.Snapshot
			snap.ProblemID = existing.ID
			if err := txn.Create(&snap).Error; err != nil {
				return err
			}
			existing.Analyses = append(existing.Analyses, snap)
			out = &existing
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			created := problem.Problem{
				UserID:       in.UserID,
				URL:          in.URL,
				ApproachName: in.ApproachName,
				Name:         in.Name,
				Domain:       in.Domain,
				KeyAlgorithm: in.KeyAlgorithm,
				Difficulty:   in.Difficulty,
				Analyses:     []problem.Analysis{in.Snapshot},
			}
			// A concurrent duplicate delivery loses this insert on the
			// unique natural-key index; the caller surfaces the error and
			// the queue's redelivery lands in the update branch.
			if err := txn.Create(&created).Error; err != nil {
				return err
			}
			out = &created
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (pr *problemRepo) GetByNaturalKey(ctx context.Context, tx *gorm.DB, userID, url, approachName string) (*problem.Problem, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var result problem.Problem
	if err := transaction.WithContext(ctx).
		Preload("Analyses", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("user_id = ? AND url = ? AND approach_name = ?", userID, url, approachName).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
