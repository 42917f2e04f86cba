package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingSortFields whitelists the columns a listing query may sort by.
var ListingSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"price":      true,
	"title":      true,
}

// DefaultListingSort is used when no sort is given.
const DefaultListingSort = "-created_at"

// OrderClause turns "-price" into "price DESC". Unknown fields are rejected.
func OrderClause(sort string, allowed map[string]bool) (string, error) {
	sort = strings.TrimSpace(sort)
	if sort == "" {
		sort = DefaultListingSort
	}
	dir := "ASC"
	switch {
	case strings.HasPrefix(sort, "-"):
		dir, sort = "DESC", sort[1:]
	case strings.HasPrefix(sort, "+"):
		sort = sort[1:]
	}
	if !allowed[sort] {
		return "", fmt.Errorf("unsupported sort field %q", sort)
	}
	return sort + " " + dir, nil
}

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, m *TemplateModel) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *TemplateRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*TemplateModel, error) {
	var m TemplateModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListingQuery selects listings for a feed. Zero values mean no filter.
type ListingQuery struct {
	Limit    int
	Sort     string
	Category string
	Status   string
}

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) Create(ctx context.Context, m *ListingModel) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *ListingRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*ListingModel, error) {
	var m ListingModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *ListingRepository) Find(ctx context.Context, orgID uuid.UUID, q ListingQuery) ([]ListingModel, error) {
	order, err := OrderClause(q.Sort, ListingSortFields)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	var out []ListingModel
	if err := query.Order(order).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type FeedRepository struct {
	db *gorm.DB
}

func NewFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// Create inserts the feed and its inventory in one transaction.
func (r *FeedRepository) Create(ctx context.Context, m *FeedModel) error {
	for i := range m.Items {
		m.Items[i].Position = i
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
}

func (r *FeedRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*FeedModel, error) {
	var m FeedModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// List returns the organization's feeds newest first, without inventory.
func (r *FeedRepository) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]FeedModel, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.db.WithContext(ctx).Model(&FeedModel{}).Where("organization_id = ?", orgID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []FeedModel
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
