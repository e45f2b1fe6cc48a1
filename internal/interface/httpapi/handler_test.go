package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/embedding"
	"github.com/jinford/honbob-navi/internal/core/recommend"
	"github.com/jinford/honbob-navi/internal/core/scoring"
	"github.com/jinford/honbob-navi/internal/core/search"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearchRepo struct {
	hits      []*search.Hit
	lastQuery search.HitQuery
}

func (r *stubSearchRepo) SearchStoreHits(ctx context.Context, q search.HitQuery) ([]*search.Hit, error) {
	r.lastQuery = q
	return r.hits, nil
}

func (r *stubSearchRepo) GetStoresByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*store.Store, error) {
	stores := make(map[uuid.UUID]*store.Store, len(ids))
	for _, id := range ids {
		stores[id] = &store.Store{
			ID:          id,
			Name:        "혼밥식당",
			Address:     mo.Some("서울시 강남구"),
			Location:    store.Coordinate{Latitude: 37.5, Longitude: 127.0},
			HonbobLevel: mo.Some(store.HonbobLevelOne),
		}
	}
	return stores, nil
}

func (r *stubSearchRepo) GetMainImageURLs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	return map[uuid.UUID]string{}, nil
}

func (r *stubSearchRepo) GetRepresentativeMenus(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]search.MenuSummary, error) {
	return map[uuid.UUID]search.MenuSummary{}, nil
}

func (r *stubSearchRepo) GetSeatTypesByStoreIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]store.SeatType, error) {
	return map[uuid.UUID][]store.SeatType{}, nil
}

func (r *stubSearchRepo) GetSavedStoreIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return map[uuid.UUID]bool{}, nil
}

type stubRecommendRepo struct {
	ref    *store.Store
	ranked []*recommend.SimilarStore
}

func (r *stubRecommendRepo) GetStoreByID(ctx context.Context, id uuid.UUID) (mo.Option[*store.Store], error) {
	if r.ref == nil || r.ref.ID != id {
		return mo.None[*store.Store](), nil
	}
	return mo.Some(r.ref), nil
}

func (r *stubRecommendRepo) ListCandidateIDs(ctx context.Context, ref *store.Store, radiusMeters float64) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(r.ranked))
	for i, s := range r.ranked {
		ids[i] = s.StoreID
	}
	return ids, nil
}

func (r *stubRecommendRepo) RankByEmbedding(ctx context.Context, refID uuid.UUID, candidateIDs []uuid.UUID, limit int) ([]*recommend.SimilarStore, error) {
	return r.ranked, nil
}

type stubScoringRepo struct{}

func (r *stubScoringRepo) ListScoreTargets(ctx context.Context, pendingOnly bool) ([]*scoring.Target, error) {
	return []*scoring.Target{
		{StoreID: uuid.New(), Level: mo.Some(store.HonbobLevelOne)},
		{StoreID: uuid.New()},
	}, nil
}

func (r *stubScoringRepo) UpdateInternalScores(ctx context.Context, scores map[uuid.UUID]float64) (int, error) {
	return len(scores), nil
}

type stubEmbeddingRepo struct {
	mu      sync.Mutex
	pending []uuid.UUID
}

func (r *stubEmbeddingRepo) GetStoreProfile(ctx context.Context, storeID uuid.UUID) (mo.Option[*embedding.StoreProfile], error) {
	return mo.None[*embedding.StoreProfile](), nil
}

func (r *stubEmbeddingRepo) ListEmbeddingTargets(ctx context.Context, limit int) ([]*embedding.StoreProfile, error) {
	return nil, nil
}

func (r *stubEmbeddingRepo) SaveEmbedding(ctx context.Context, storeID uuid.UUID, vector []float32) error {
	return nil
}
func (r *stubEmbeddingRepo) MarkEmbeddingFailed(ctx context.Context, storeID uuid.UUID) error {
	return nil
}
func (r *stubEmbeddingRepo) MarkEmbeddingPending(ctx context.Context, storeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, storeID)
	return nil
}

func (r *stubEmbeddingRepo) markedPending(storeID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.pending {
		if id == storeID {
			return true
		}
	}
	return false
}

type stubEmbedder struct{}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

func newTestHandler(t *testing.T, searchRepo search.Repository, recommendRepo recommend.Repository) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	builder, err := embedding.NewTextBuilder(embedding.DefaultMaxProfileTokens)
	require.NoError(t, err)

	h := NewHandler(
		search.NewService(searchRepo, search.WithSearchLogger(logger)),
		recommend.NewService(recommendRepo, logger),
		scoring.NewService(&stubScoringRepo{}, scoring.NewCalculator(scoring.DefaultConfig()), logger),
		embedding.NewService(&stubEmbeddingRepo{}, &stubEmbedder{}, builder, embedding.DefaultConfig(), logger),
		logger,
	)
	return h.Routes()
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch(t *testing.T) {
	storeID := uuid.New()
	repo := &stubSearchRepo{
		hits: []*search.Hit{{StoreID: storeID, DistanceMeters: 400, RankKey: 400}},
	}
	handler := newTestHandler(t, repo, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/stores/search?lat=37.5&lng=127.0&radius=1500&levels=1,2&sort=distance")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Stores, 1)
	assert.Equal(t, storeID.String(), resp.Stores[0].ID)
	assert.Equal(t, "혼밥식당", resp.Stores[0].Name)
	assert.Equal(t, 400.0, resp.Stores[0].DistanceMeters)
	assert.Equal(t, 5, resp.Stores[0].WalkingMinutes)
	assert.False(t, resp.HasMore)

	// フィルタがリポジトリまで伝わっている
	assert.Equal(t, 1500.0, repo.lastQuery.Filter.RadiusMeters)
	assert.Len(t, repo.lastQuery.Filter.Levels, 2)
}

func TestHandleSearch_BadRequests(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	tests := []struct {
		name   string
		target string
	}{
		{"緯度なし", "/api/v1/stores/search?lng=127.0"},
		{"経度なし", "/api/v1/stores/search?lat=37.5"},
		{"不正なレベル", "/api/v1/stores/search?lat=37.5&lng=127.0&levels=9"},
		{"不正な座席種別", "/api/v1/stores/search?lat=37.5&lng=127.0&seat_types=SOFA"},
		{"不正な半径", "/api/v1/stores/search?lat=37.5&lng=127.0&radius=-5"},
		{"BoundingBoxの角が不足", "/api/v1/stores/search?lat=37.5&lng=127.0&sw_lat=37.4"},
		{"価格の大小が逆転", "/api/v1/stores/search?lat=37.5&lng=127.0&min_price=9000&max_price=5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodGet, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleSearch_BrokenCursorIsNotAnError(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/stores/search?lat=37.5&lng=127.0&cursor=!!broken!!")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSimilar(t *testing.T) {
	ref := &store.Store{ID: uuid.New(), Name: "기준 가게"}
	ranked := []*recommend.SimilarStore{
		{
			StoreID:        uuid.New(),
			Name:           "유사 가게",
			Location:       store.Coordinate{Latitude: 37.51, Longitude: 127.01},
			HonbobLevel:    mo.Some(store.HonbobLevelOne),
			CosineDistance: 0.08,
		},
	}
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{ref: ref, ranked: ranked})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/stores/"+ref.ID.String()+"/similar")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp similarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Stores, 1)
	assert.Equal(t, "유사 가게", resp.Stores[0].Name)
	assert.Equal(t, 0.08, resp.Stores[0].CosineDistance)
}

func TestHandleSimilar_NotFound(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/stores/"+uuid.NewString()+"/similar")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSimilar_InvalidID(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/stores/not-a-uuid/similar")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecalculate(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/admin/scores/recalculate")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp recalculateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Updated)
}

func TestHandleEmbeddingBatch(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/admin/embeddings/batch")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp embeddingBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Requested)
}

func TestHandleEmbeddingMarkPending(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder, err := embedding.NewTextBuilder(embedding.DefaultMaxProfileTokens)
	require.NoError(t, err)

	repo := &stubEmbeddingRepo{}
	h := NewHandler(
		search.NewService(&stubSearchRepo{}, search.WithSearchLogger(logger)),
		recommend.NewService(&stubRecommendRepo{}, logger),
		scoring.NewService(&stubScoringRepo{}, scoring.NewCalculator(scoring.DefaultConfig()), logger),
		embedding.NewService(repo, &stubEmbedder{}, builder, embedding.DefaultConfig(), logger),
		logger,
	)
	handler := h.Routes()

	storeID := uuid.New()
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/admin/embeddings/stores/"+storeID.String()+"/pending")
	require.Equal(t, http.StatusAccepted, rec.Code)

	// PENDING は応答後に非同期で立つ
	require.Eventually(t, func() bool {
		return repo.markedPending(storeID)
	}, time.Second, 10*time.Millisecond)
}

func TestHandleEmbeddingMarkPending_InvalidID(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/admin/embeddings/stores/not-a-uuid/pending")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEmbeddingGenerate_NotFound(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/admin/embeddings/stores/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t, &stubSearchRepo{}, &stubRecommendRepo{})

	rec := doRequest(t, handler, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/search?lat=1&lng=2", nil)

	// ヘッダなしは匿名
	id, err := parseUserID(req)
	require.NoError(t, err)
	assert.True(t, id.IsAbsent())

	req.Header.Set("X-User-ID", "not-a-uuid")
	_, err = parseUserID(req)
	assert.Error(t, err)

	userID := uuid.New()
	req.Header.Set("X-User-ID", userID.String())
	id, err = parseUserID(req)
	require.NoError(t, err)
	assert.Equal(t, mo.Some(userID), id)
}
