package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ByLCY/adsmith/layout"
)

// Base carries the id and timestamps shared by every table.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// TemplateModel holds a design document as submitted by the editor.
type TemplateModel struct {
	Base
	OrganizationID uuid.UUID      `gorm:"type:uuid;index;not null" json:"organizationId"`
	Name           string         `gorm:"size:200" json:"name"`
	DesignSize     string         `gorm:"size:10" json:"designSize"`
	Document       datatypes.JSON `json:"document"`
}

func (TemplateModel) TableName() string { return "templates" }

// Template parses the stored document.
func (m *TemplateModel) Template() (*layout.Template, error) {
	tpl, err := layout.ParseTemplate(m.Document)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", m.ID, err)
	}
	return tpl, nil
}

// ListingModel is a marketplace listing. The service only reads listings.
type ListingModel struct {
	Base
	OrganizationID uuid.UUID         `gorm:"type:uuid;index;not null" json:"organizationId"`
	Title          string            `gorm:"size:300" json:"title"`
	Category       string            `gorm:"size:100;index" json:"category"`
	Status         string            `gorm:"size:50;index" json:"status"`
	Price          float64           `json:"price"`
	Images         []string          `gorm:"serializer:json" json:"images"`
	Attributes     datatypes.JSONMap `json:"attributes"`
}

func (ListingModel) TableName() string { return "listings" }

// Record flattens the listing into the data record a template binds against.
// Free attributes are exposed both at top level and under "attributes"; the
// core columns win on name clashes.
func (m *ListingModel) Record() map[string]any {
	record := make(map[string]any, len(m.Attributes)+8)
	attrs := make(map[string]any, len(m.Attributes))
	for k, v := range m.Attributes {
		record[k] = v
		attrs[k] = v
	}
	images := make([]string, len(m.Images))
	copy(images, m.Images)
	record["id"] = m.ID.String()
	record["title"] = m.Title
	record["category"] = m.Category
	record["status"] = m.Status
	record["price"] = m.Price
	record["images"] = images
	record["attributes"] = attrs
	record["createdAt"] = m.CreatedAt
	return record
}

// FeedModel is a persisted batch of render results.
type FeedModel struct {
	Base
	OrganizationID uuid.UUID       `gorm:"type:uuid;index;not null" json:"organizationId"`
	Name           string          `gorm:"size:200" json:"name"`
	Platform       string          `gorm:"size:50" json:"platform"`
	TemplateID     *uuid.UUID      `gorm:"type:uuid" json:"template"`
	Filters        datatypes.JSON  `json:"filters"`
	Items          []FeedItemModel `gorm:"foreignKey:FeedID;constraint:OnDelete:CASCADE" json:"inventory"`
}

func (FeedModel) TableName() string { return "feeds" }

// SetFilters stores v as the feed's filter JSON.
func (m *FeedModel) SetFilters(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Filters = datatypes.JSON(data)
	return nil
}

// FeedItemModel is one render result inside a feed's inventory.
type FeedItemModel struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	FeedID    uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	Position  int       `gorm:"not null" json:"-"`
	ListingID string    `gorm:"size:64" json:"listing"`
	Success   bool      `json:"success"`
	URL       *string   `json:"url"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (FeedItemModel) TableName() string { return "feed_items" }
