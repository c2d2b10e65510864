package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"taskflow/internal/model"
)

// TeamRepository looks up teams tasks are filed under.
type TeamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func (r *TeamRepository) Create(ctx context.Context, team *model.Team) error {
	if err := conn(ctx, r.db).Create(team).Error; err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

func (r *TeamRepository) Get(ctx context.Context, id string) (*model.Team, error) {
	var team model.Team
	if err := conn(ctx, r.db).Where("id = ?", id).First(&team).Error; err != nil {
		return nil, fmt.Errorf("find team %s: %w", id, notFound(err))
	}
	return &team, nil
}
