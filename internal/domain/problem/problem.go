package problem

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Problem is one (user, url, approach) submission. The composite unique index
// is the natural key: resubmitting the same approach to the same url updates
// this row and appends an Analysis instead of creating a sibling.
type Problem struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string    `gorm:"type:text;not null;uniqueIndex:idx_problem_natural_key,priority:1" json:"user_id"`

	URL          string `gorm:"type:text;not null;uniqueIndex:idx_problem_natural_key,priority:2" json:"url"`
	ApproachName string `gorm:"type:text;not null;uniqueIndex:idx_problem_natural_key,priority:3" json:"approach_name"`

	Name         string `gorm:"type:text;not null" json:"name"`
	Domain       string `gorm:"type:text;not null;index" json:"domain"`
	KeyAlgorithm string `gorm:"type:text;not null;index" json:"key_algorithm"`
	Difficulty   string `gorm:"type:text;not null" json:"difficulty"`

	Analyses []Analysis `gorm:"foreignKey:ProblemID;constraint:OnDelete:CASCADE" json:"analyses,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Problem) TableName() string { return "problem" }

// BeforeCreate keeps id generation working on databases without the
// uuid-ossp default (the sqlite test store in particular).
func (p *Problem) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Analysis is an append-only snapshot of one model run. Rows are never
// updated or deleted once written.
type Analysis struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProblemID uuid.UUID `gorm:"type:uuid;not null;index" json:"problem_id"`

	PseudoCode datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"pseudo_code"`
	Time       string         `gorm:"type:text;not null" json:"time"`
	Space      string         `gorm:"type:text;not null" json:"space"`
	Tags       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"tags"`
	Notes      string         `gorm:"type:text;not null;default:''" json:"notes"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Analysis) TableName() string { return "analysis" }

func (a *Analysis) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
