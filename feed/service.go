package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ByLCY/adsmith/layout"
	"github.com/ByLCY/adsmith/persistence"
	"github.com/ByLCY/adsmith/renderer"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrFeedNotFound     = errors.New("feed not found")
	ErrListingNotFound  = errors.New("listing not found")
	// ErrInvalidInput wraps request problems the caller can fix.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	DefaultListingLimit = 100
	MaxListingLimit     = 1000
)

type TemplateRepository interface {
	Create(ctx context.Context, m *persistence.TemplateModel) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*persistence.TemplateModel, error)
}

type ListingRepository interface {
	Find(ctx context.Context, orgID uuid.UUID, q persistence.ListingQuery) ([]persistence.ListingModel, error)
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*persistence.ListingModel, error)
}

type FeedRepository interface {
	Create(ctx context.Context, m *persistence.FeedModel) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*persistence.FeedModel, error)
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]persistence.FeedModel, int64, error)
}

// Filters selects the listings of a feed.
type Filters struct {
	Limit    int    `json:"limit,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Category string `json:"category,omitempty"`
	Status   string `json:"status,omitempty"`
}

// normalized applies the default limit and caps it.
func (f Filters) normalized() Filters {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListingLimit
	case f.Limit > MaxListingLimit:
		f.Limit = MaxListingLimit
	}
	if f.Sort == "" {
		f.Sort = persistence.DefaultListingSort
	}
	return f
}

type CreateFeedInput struct {
	Name       string
	Platform   string
	TemplateID *uuid.UUID
	Filters    Filters
}

// PreviewInput renders either a stored listing or an ad-hoc record.
type PreviewInput struct {
	ListingID *uuid.UUID
	Record    map[string]any
}

// Service is the entry point for feed and template operations.
type Service struct {
	templates    TemplateRepository
	listings     ListingRepository
	feeds        FeedRepository
	orchestrator *Orchestrator
	logger       *zap.Logger
}

func NewService(templates TemplateRepository, listings ListingRepository, feeds FeedRepository, o *Orchestrator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{templates: templates, listings: listings, feeds: feeds, orchestrator: o, logger: logger}
}

// CreateFeed resolves the template, selects listings, renders them and
// persists the feed with its inventory.
func (s *Service) CreateFeed(ctx context.Context, orgID uuid.UUID, in CreateFeedInput) (*persistence.FeedModel, error) {
	filters := in.Filters.normalized()
	log := s.logger.With(zap.String("organization_id", orgID.String()), zap.String("platform", in.Platform))

	var tpl *layout.Template
	if in.TemplateID != nil {
		var err error
		if tpl, err = s.loadTemplate(ctx, orgID, *in.TemplateID); err != nil {
			return nil, err
		}
	}

	if _, err := persistence.OrderClause(filters.Sort, persistence.ListingSortFields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	models, err := s.listings.Find(ctx, orgID, persistence.ListingQuery{
		Limit:    filters.Limit,
		Sort:     filters.Sort,
		Category: filters.Category,
		Status:   filters.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	batch := make([]Listing, len(models))
	for i := range models {
		batch[i] = Listing{ID: models[i].ID.String(), Record: models[i].Record()}
	}

	results := s.orchestrator.RenderFeed(ctx, Request{Platform: in.Platform, Template: tpl, Listings: batch})

	feed := &persistence.FeedModel{
		OrganizationID: orgID,
		Name:           in.Name,
		Platform:       in.Platform,
		TemplateID:     in.TemplateID,
		Items:          make([]persistence.FeedItemModel, len(results)),
	}
	if err := feed.SetFilters(filters); err != nil {
		return nil, err
	}
	for i, r := range results {
		feed.Items[i] = persistence.FeedItemModel{
			ListingID: r.ListingID,
			Success:   r.Success,
			URL:       r.URL,
			Error:     r.Error,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	// 落库使用独立的 context，避免请求取消后丢失已完成的渲染结果
	if err := s.feeds.Create(context.WithoutCancel(ctx), feed); err != nil {
		return nil, fmt.Errorf("save feed: %w", err)
	}
	log.Info("feed created", zap.String("feed_id", feed.ID.String()), zap.Int("items", len(feed.Items)))
	return feed, nil
}

func (s *Service) GetFeed(ctx context.Context, orgID, id uuid.UUID) (*persistence.FeedModel, error) {
	feed, err := s.feeds.FindByID(ctx, orgID, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrFeedNotFound
	}
	return feed, err
}

func (s *Service) ListFeeds(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]persistence.FeedModel, int64, error) {
	return s.feeds.List(ctx, orgID, limit, offset)
}

// CreateTemplate validates and stores a design document.
func (s *Service) CreateTemplate(ctx context.Context, orgID uuid.UUID, name string, document json.RawMessage) (*persistence.TemplateModel, error) {
	tpl, err := layout.ParseTemplate(document)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	m := &persistence.TemplateModel{
		OrganizationID: orgID,
		Name:           name,
		DesignSize:     string(tpl.DesignSize),
		Document:       datatypes.JSON(document),
	}
	if err := s.templates.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	if problems := tpl.Problems(); len(problems) > 0 {
		s.logger.Warn("template stored with unrenderable layers",
			zap.String("template_id", m.ID.String()), zap.Int("layers", len(problems)))
	}
	return m, nil
}

func (s *Service) GetTemplate(ctx context.Context, orgID, id uuid.UUID) (*persistence.TemplateModel, error) {
	m, err := s.templates.FindByID(ctx, orgID, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	return m, err
}

// Preview renders a template for one record without uploading it.
func (s *Service) Preview(ctx context.Context, orgID, templateID uuid.UUID, in PreviewInput) ([]byte, error) {
	tpl, err := s.loadTemplate(ctx, orgID, templateID)
	if err != nil {
		return nil, err
	}
	var record renderer.Record = in.Record
	if in.ListingID != nil {
		listing, err := s.listings.FindByID(ctx, orgID, *in.ListingID)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load listing: %w", err)
		}
		record = listing.Record()
	}
	return s.orchestrator.Renderer().Render(ctx, tpl, record)
}

func (s *Service) loadTemplate(ctx context.Context, orgID, id uuid.UUID) (*layout.Template, error) {
	m, err := s.templates.FindByID(ctx, orgID, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return m.Template()
}
