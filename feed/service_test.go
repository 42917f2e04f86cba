package feed

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ByLCY/adsmith/config"
	"github.com/ByLCY/adsmith/persistence"
	"github.com/ByLCY/adsmith/storage"
)

const testDocument = `{"designSize":"1:1","layers":[{"type":"text","variable":"title","properties":{"left":0,"top":0,"width":500,"height":100}}]}`

type serviceFixture struct {
	svc      *Service
	renderer *fakeRenderer
	listings *persistence.ListingRepository
	feeds    *persistence.FeedRepository
	org      uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := persistence.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "feed.db"),
	}, "silent", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = persistence.Close(db) })

	r := &fakeRenderer{}
	f := &serviceFixture{
		renderer: r,
		listings: persistence.NewListingRepository(db),
		feeds:    persistence.NewFeedRepository(db),
		org:      uuid.New(),
	}
	o := newTestOrchestrator(t, r, storage.NewMemoryStorage())
	f.svc = NewService(persistence.NewTemplateRepository(db), f.listings, f.feeds, o, zaptest.NewLogger(t))
	return f
}

func (f *serviceFixture) seedListings(t *testing.T, n int) []persistence.ListingModel {
	out := make([]persistence.ListingModel, n)
	for i := range out {
		out[i] = persistence.ListingModel{OrganizationID: f.org, Title: "car", Status: "active", Price: float64(i)}
		require.NoError(t, f.listings.Create(context.Background(), &out[i]))
	}
	return out
}

func TestCreateFeedUnknownTemplate(t *testing.T) {
	f := newServiceFixture(t)
	missing := uuid.New()
	_, err := f.svc.CreateFeed(context.Background(), f.org, CreateFeedInput{Name: "x", Platform: "facebook", TemplateID: &missing})
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, total, err := f.feeds.List(context.Background(), f.org, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "no feed is stored when the template is missing")
}

func TestCreateFeedRendersAndPersists(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	tpl, err := f.svc.CreateTemplate(ctx, f.org, "cars", json.RawMessage(testDocument))
	require.NoError(t, err)
	seeded := f.seedListings(t, 3)
	f.renderer.fail = map[string]error{seeded[1].ID.String(): errors.New("bad record")}

	feed, err := f.svc.CreateFeed(ctx, f.org, CreateFeedInput{
		Name:       "weekly",
		Platform:   "facebook",
		TemplateID: &tpl.ID,
		Filters:    Filters{Sort: "price"},
	})
	require.NoError(t, err)
	require.Len(t, feed.Items, 3)

	stored, err := f.svc.GetFeed(ctx, f.org, feed.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 3)
	for i, item := range stored.Items {
		assert.Equal(t, seeded[i].ID.String(), item.ListingID)
	}
	assert.True(t, stored.Items[0].Success)
	assert.NotNil(t, stored.Items[0].URL)
	assert.False(t, stored.Items[1].Success)
	assert.Contains(t, stored.Items[1].Error, "bad record")
	assert.True(t, stored.Items[2].Success)

	var filters Filters
	require.NoError(t, json.Unmarshal(stored.Filters, &filters))
	assert.Equal(t, DefaultListingLimit, filters.Limit)
	assert.Equal(t, "price", filters.Sort)
}

func TestCreateFeedSkipPlatformPersistsTrivialResults(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	tpl, err := f.svc.CreateTemplate(ctx, f.org, "cars", json.RawMessage(testDocument))
	require.NoError(t, err)
	f.seedListings(t, 2)

	feed, err := f.svc.CreateFeed(ctx, f.org, CreateFeedInput{Name: "site", Platform: "website", TemplateID: &tpl.ID})
	require.NoError(t, err)
	require.Len(t, feed.Items, 2)
	for _, item := range feed.Items {
		assert.True(t, item.Success)
		assert.Nil(t, item.URL)
	}
	assert.Zero(t, f.renderer.calls.Load())
}

func TestCreateFeedRejectsUnknownSort(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateFeed(context.Background(), f.org, CreateFeedInput{Name: "x", Platform: "facebook", Filters: Filters{Sort: "password"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFiltersNormalized(t *testing.T) {
	assert.Equal(t, DefaultListingLimit, Filters{}.normalized().Limit)
	assert.Equal(t, MaxListingLimit, Filters{Limit: 5000}.normalized().Limit)
	assert.Equal(t, 7, Filters{Limit: 7}.normalized().Limit)
	assert.Equal(t, persistence.DefaultListingSort, Filters{}.normalized().Sort)
}

func TestCreateTemplateValidates(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateTemplate(context.Background(), f.org, "bad", json.RawMessage(`{"designSize":"3:2","layers":[]}`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	m, err := f.svc.CreateTemplate(context.Background(), f.org, "ok", json.RawMessage(testDocument))
	require.NoError(t, err)
	assert.Equal(t, "1:1", m.DesignSize)

	_, err = f.svc.GetTemplate(context.Background(), uuid.New(), m.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestPreview(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	tpl, err := f.svc.CreateTemplate(ctx, f.org, "cars", json.RawMessage(testDocument))
	require.NoError(t, err)
	seeded := f.seedListings(t, 1)

	data, err := f.svc.Preview(ctx, f.org, tpl.ID, PreviewInput{ListingID: &seeded[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "png:"+seeded[0].ID.String(), string(data))

	data, err = f.svc.Preview(ctx, f.org, tpl.ID, PreviewInput{Record: map[string]any{"id": "adhoc"}})
	require.NoError(t, err)
	assert.Equal(t, "png:adhoc", string(data))

	missing := uuid.New()
	_, err = f.svc.Preview(ctx, f.org, tpl.ID, PreviewInput{ListingID: &missing})
	assert.ErrorIs(t, err, ErrListingNotFound)

	_, err = f.svc.Preview(ctx, f.org, uuid.New(), PreviewInput{})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
