package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ByLCY/adsmith/config"
	"github.com/ByLCY/adsmith/layout"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}, "warn", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"}, "", nil)
	assert.Error(t, err)
}

func TestOrderClause(t *testing.T) {
	order, err := OrderClause("", ListingSortFields)
	require.NoError(t, err)
	assert.Equal(t, "created_at DESC", order)

	order, err = OrderClause("price", ListingSortFields)
	require.NoError(t, err)
	assert.Equal(t, "price ASC", order)

	order, err = OrderClause("+title", ListingSortFields)
	require.NoError(t, err)
	assert.Equal(t, "title ASC", order)

	_, err = OrderClause("-password; DROP TABLE listings", ListingSortFields)
	assert.Error(t, err)
}

func TestTemplateRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewTemplateRepository(db)
	ctx := context.Background()
	org := uuid.New()

	doc := `{"designSize":"4:5","layers":[{"type":"text","variable":"title","properties":{"left":0,"top":0,"width":100,"height":50}}]}`
	m := &TemplateModel{OrganizationID: org, Name: "Cars", DesignSize: "4:5", Document: datatypes.JSON(doc)}
	require.NoError(t, repo.Create(ctx, m))
	require.NotEqual(t, uuid.Nil, m.ID)

	got, err := repo.FindByID(ctx, org, m.ID)
	require.NoError(t, err)
	tpl, err := got.Template()
	require.NoError(t, err)
	assert.Equal(t, layout.DesignSize("4:5"), tpl.DesignSize)
	assert.Len(t, tpl.Layers, 1)

	_, err = repo.FindByID(ctx, uuid.New(), m.ID)
	assert.ErrorIs(t, err, ErrNotFound, "other organizations cannot see the template")
}

func TestListingRepositoryFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewListingRepository(db)
	ctx := context.Background()
	org := uuid.New()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []ListingModel{
		{Title: "A", Category: "cars", Status: "active", Price: 300},
		{Title: "B", Category: "cars", Status: "sold", Price: 100},
		{Title: "C", Category: "boats", Status: "active", Price: 200},
		{Title: "D", Category: "cars", Status: "active", Price: 50},
	}
	for i := range seed {
		seed[i].OrganizationID = org
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}
	require.NoError(t, repo.Create(ctx, &ListingModel{OrganizationID: uuid.New(), Title: "other"}))

	all, err := repo.Find(ctx, org, ListingQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "D", all[0].Title, "newest first by default")

	cars, err := repo.Find(ctx, org, ListingQuery{Category: "cars", Status: "active", Sort: "price"})
	require.NoError(t, err)
	require.Len(t, cars, 2)
	assert.Equal(t, "D", cars[0].Title)
	assert.Equal(t, "A", cars[1].Title)

	limited, err := repo.Find(ctx, org, ListingQuery{Limit: 2, Sort: "-price"})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "A", limited[0].Title)

	_, err = repo.Find(ctx, org, ListingQuery{Sort: "secret"})
	assert.Error(t, err)
}

func TestListingRecord(t *testing.T) {
	m := ListingModel{
		Title:      "Golf",
		Price:      150000,
		Images:     []string{"/a.png"},
		Attributes: datatypes.JSONMap{"mileage": 12000.0, "title": "ignored"},
	}
	m.ID = uuid.New()
	record := m.Record()

	assert.Equal(t, "Golf", record["title"])
	assert.Equal(t, 12000.0, record["mileage"])
	assert.Equal(t, []string{"/a.png"}, record["images"])
	assert.Equal(t, m.ID.String(), record["id"])
	attrs := record["attributes"].(map[string]any)
	assert.Equal(t, "ignored", attrs["title"])
}

func TestFeedRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()
	org := uuid.New()

	url := "memory://feeds/a.png"
	feed := &FeedModel{
		OrganizationID: org,
		Name:           "weekly",
		Platform:       "facebook",
		Items: []FeedItemModel{
			{ListingID: "l1", Success: true, URL: &url},
			{ListingID: "l2", Success: false, Error: "boom"},
			{ListingID: "l3", Success: true, URL: &url},
		},
	}
	require.NoError(t, feed.SetFilters(map[string]any{"limit": 3}))
	require.NoError(t, repo.Create(ctx, feed))

	got, err := repo.FindByID(ctx, org, feed.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.Equal(t, []string{"l1", "l2", "l3"}, []string{got.Items[0].ListingID, got.Items[1].ListingID, got.Items[2].ListingID})
	assert.Nil(t, got.Items[1].URL)
	assert.Equal(t, "boom", got.Items[1].Error)
	assert.JSONEq(t, `{"limit":3}`, string(got.Filters))

	feeds, total, err := repo.List(ctx, org, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, feeds, 1)

	_, err = repo.FindByID(ctx, uuid.New(), feed.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}
