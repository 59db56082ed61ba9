package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OperatorRepository interface {
	Create(ctx context.Context, op *model.Operator) error
	FindByUsername(ctx context.Context, username string) (*model.Operator, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Operator, error)
	SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	CountAll(ctx context.Context) (int64, error)
}

type operatorRepository struct {
	db *gorm.DB
}

func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) Create(ctx context.Context, op *model.Operator) error {
	return GetDB(ctx, r.db).Create(op).Error
}

func (r *operatorRepository) FindByUsername(ctx context.Context, username string) (*model.Operator, error) {
	var op model.Operator
	if err := GetDB(ctx, r.db).First(&op, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operatorRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Operator, error) {
	var op model.Operator
	if err := GetDB(ctx, r.db).First(&op, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operatorRepository) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	return GetDB(ctx, r.db).Create(token).Error
}

func (r *operatorRepository) FindRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	if err := GetDB(ctx, r.db).First(&t, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *operatorRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	return GetDB(ctx, r.db).Delete(&model.RefreshToken{}, "token = ?", token).Error
}

func (r *operatorRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Operator{}).Count(&n).Error
	return n, err
}
