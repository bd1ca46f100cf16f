package textsearch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/places"
	"github.com/JakeFAU/leadscout/internal/places/mocks"
	"github.com/JakeFAU/leadscout/internal/policy/qualify"
	"github.com/JakeFAU/leadscout/internal/storage/memory"
)

func intPtr(v int) *int { return &v }

func place(id string, website string, reviews int) places.Place {
	return places.Place{
		ID:              id,
		DisplayName:     &places.LocalizedText{Text: "Business " + id},
		BusinessStatus:  places.BusinessStatusOperational,
		WebsiteURI:      website,
		UserRatingCount: intPtr(reviews),
	}
}

// quitoPage returns 20 places: 12 with a website, 3 under the review
// threshold, and 5 that qualify.
func quitoPage() []places.Place {
	var out []places.Place
	for i := 0; i < 12; i++ {
		out = append(out, place(fmt.Sprintf("web-%d", i), "https://example.com", 50))
	}
	for i := 0; i < 3; i++ {
		out = append(out, place(fmt.Sprintf("low-%d", i), "", 2))
	}
	for i := 0; i < 5; i++ {
		out = append(out, place(fmt.Sprintf("ok-%d", i), "", 10+i))
	}
	return out
}

func TestCollect_QualifiesAndPersists(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, places.SearchRequest{Query: "plomeros Quito", PageSize: 20}).
		Return(&places.SearchResponse{Places: quitoPage(), NextPageToken: "tok-2"}, nil).Once()

	store := memory.NewLeadStore()
	c := New(client, store, qualify.New(qualify.DefaultMinReviews), Config{}, nil)

	res, err := c.Collect(context.Background(), "  plomeros Quito ", "")
	require.NoError(t, err)

	assert.Equal(t, 20, res.Found)
	assert.Equal(t, 5, res.Qualified)
	assert.Equal(t, 5, res.Writes.Inserted)
	assert.Zero(t, res.Writes.Updated)
	assert.Zero(t, res.Writes.Failed)
	assert.Equal(t, lead.Rejections{HasWebsite: 12, LowReviews: 3}, res.Rejections)
	assert.Equal(t, "tok-2", res.NextToken)
	assert.Equal(t, 5, store.Len())

	stored, err := store.Get(context.Background(), "ok-0")
	require.NoError(t, err)
	assert.Equal(t, lead.StatusNew, stored.Status)
	assert.Equal(t, lead.SourcePlacesAPI, stored.Source)
	assert.Equal(t, "plomeros Quito", stored.SourceQuery)
}

func TestCollect_RerunReportsUpdates(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: quitoPage()}, nil).Twice()

	store := memory.NewLeadStore()
	c := New(client, store, qualify.New(qualify.DefaultMinReviews), Config{}, nil)

	_, err := c.Collect(context.Background(), "plomeros Quito", "")
	require.NoError(t, err)
	res, err := c.Collect(context.Background(), "plomeros Quito", "")
	require.NoError(t, err)

	assert.Zero(t, res.Writes.Inserted)
	assert.Equal(t, 5, res.Writes.Updated)
	assert.Equal(t, 5, store.Len())
	assert.Empty(t, res.NextToken)
}

func TestCollect_APIErrorWritesNothing(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(nil, &places.APIError{StatusCode: 403, Message: "PERMISSION_DENIED: bad key"}).Once()

	store := memory.NewLeadStore()
	res, err := New(client, store, qualify.New(qualify.DefaultMinReviews), Config{}, nil).Collect(context.Background(), "cerrajeros", "")

	var apiErr *places.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, store.Len())
}

func TestCollect_EmptyQuery(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	_, err := New(client, memory.NewLeadStore(), qualify.New(qualify.DefaultMinReviews), Config{}, nil).Collect(context.Background(), "   ", "")
	require.ErrorIs(t, err, ErrEmptyQuery)
	client.AssertNotCalled(t, "SearchText", mock.Anything, mock.Anything)
}

func TestCollect_PassesContinuationToken(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, places.SearchRequest{Query: "q", PageSize: 10, PageToken: "tok-7"}).
		Return(&places.SearchResponse{}, nil).Once()

	res, err := New(client, memory.NewLeadStore(), qualify.New(qualify.DefaultMinReviews), Config{PageSize: 10}, nil).Collect(context.Background(), "q", "tok-7")
	require.NoError(t, err)
	assert.Zero(t, res.Found)
}

func TestCollect_SkipsMissingAndDuplicateIDs(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: []places.Place{
			place("", "", 10),
			place("a", "", 10),
			place("a", "", 10),
		}}, nil).Once()

	store := memory.NewLeadStore()
	res, err := New(client, store, qualify.New(qualify.DefaultMinReviews), Config{}, nil).Collect(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Found)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Writes.Inserted)
}

type flakyStore struct {
	mu     sync.Mutex
	failOn string
	writes []string
}

func (s *flakyStore) Upsert(_ context.Context, l lead.Lead) (lead.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ExternalID == s.failOn {
		return "", errors.New("connection reset")
	}
	s.writes = append(s.writes, l.ExternalID)
	return lead.Inserted, nil
}

func TestCollect_IsolatesRecordFailures(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("SearchText", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Places: quitoPage()}, nil).Once()

	store := &flakyStore{failOn: "ok-2"}
	res, err := New(client, store, qualify.New(qualify.DefaultMinReviews), Config{}, nil).Collect(context.Background(), "plomeros Quito", "")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Writes.Attempted)
	assert.Equal(t, 4, res.Writes.Inserted)
	assert.Equal(t, 1, res.Writes.Failed)
	assert.Equal(t, []string{"ok-0", "ok-1", "ok-3", "ok-4"}, store.writes)
}
