package repository

import (
	"context"

	"backend/internal/model"
	"backend/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderFilter narrows order listings.
type OrderFilter struct {
	VendorCode string
	State      string
	Page       int
	Limit      int
}

type OrderRepository interface {
	// PersistOrder writes the header and all lines atomically.
	PersistOrder(ctx context.Context, order *model.Order, lines []model.OrderLine) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByIDWithLines(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindLine(ctx context.Context, lineID uuid.UUID) (*model.OrderLine, error)
	UpdateLineField(ctx context.Context, lineID uuid.UUID, field string, value interface{}) error
	UpdateCustomer(ctx context.Context, orderID uuid.UUID, customerKey string, score float64, candidates int, status string) error
	TransitionState(ctx context.Context, orderID uuid.UUID, from, to string) (bool, error)
	List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error)
	CountAll(ctx context.Context) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) PersistOrder(ctx context.Context, order *model.Order, lines []model.OrderLine) error {
	return GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = order.ID
			if err := tx.Create(&lines[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIDWithLines(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := GetDB(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal ASC") }).
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindLine(ctx context.Context, lineID uuid.UUID) (*model.OrderLine, error) {
	var line model.OrderLine
	if err := GetDB(ctx, r.db).First(&line, "id = ?", lineID).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *orderRepository) UpdateLineField(ctx context.Context, lineID uuid.UUID, field string, value interface{}) error {
	return GetDB(ctx, r.db).Model(&model.OrderLine{}).Where("id = ?", lineID).Update(field, value).Error
}

func (r *orderRepository) UpdateCustomer(ctx context.Context, orderID uuid.UUID, customerKey string, score float64, candidates int, status string) error {
	return GetDB(ctx, r.db).Model(&model.Order{}).Where("id = ?", orderID).Updates(map[string]interface{}{
		"customer_key":      customerKey,
		"lookup_score":      score,
		"lookup_candidates": candidates,
		"lookup_status":     status,
	}).Error
}

// TransitionState flips the order state only when the current state matches
// `from`, making concurrent transitions race-safe. Returns false when the
// precondition did not hold.
func (r *orderRepository) TransitionState(ctx context.Context, orderID uuid.UUID, from, to string) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Order{}).
		Where("id = ? AND state = ?", orderID, from).
		Update("state", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]model.Order, int64, error) {
	db := GetDB(ctx, r.db).Model(&model.Order{})
	if filter.VendorCode != "" {
		db = db.Where("vendor_code = ?", filter.VendorCode)
	}
	if filter.State != "" {
		db = db.Where("state = ?", filter.State)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	filter.Page, filter.Limit = pagination.Clamp(filter.Page, filter.Limit)

	var orders []model.Order
	if err := db.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal ASC") }).
		Order("created_at DESC").
		Offset(pagination.Offset(filter.Page, filter.Limit)).
		Limit(filter.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) CountAll(ctx context.Context) (int64, error) {
	var total int64
	err := GetDB(ctx, r.db).Model(&model.Order{}).Count(&total).Error
	return total, err
}
