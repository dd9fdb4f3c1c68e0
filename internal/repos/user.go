package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solvegraph/solvegraph-backend/internal/domain/user"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

type UserRepo interface {
	// Ensure creates the user row if absent. Existing profile fields are
	// never overwritten by later submissions.
	Ensure(ctx context.Context, tx *gorm.DB, u *user.User) error
	GetByID(ctx context.Context, tx *gorm.DB, userID string) (*user.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (ur *userRepo) Ensure(ctx context.Context, tx *gorm.DB, u *user.User) error {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(u).Error
}

func (ur *userRepo) GetByID(ctx context.Context, tx *gorm.DB, userID string) (*user.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var result user.User
	if err := transaction.WithContext(ctx).
		Where("id = ?", userID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
