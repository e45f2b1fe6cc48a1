package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/embedding"
	"github.com/jinford/honbob-navi/internal/core/recommend"
	"github.com/jinford/honbob-navi/internal/core/scoring"
	"github.com/jinford/honbob-navi/internal/core/search"
)

// Handler は店舗検索・レコメンドのHTTPエンドポイントを提供する
type Handler struct {
	search    *search.Service
	recommend *recommend.Service
	scoring   *scoring.Service
	embedding *embedding.Service
	logger    *slog.Logger
}

// NewHandler は新しい Handler を作成する
func NewHandler(
	searchService *search.Service,
	recommendService *recommend.Service,
	scoringService *scoring.Service,
	embeddingService *embedding.Service,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		search:    searchService,
		recommend: recommendService,
		scoring:   scoringService,
		embedding: embeddingService,
		logger:    logger,
	}
}

// Routes はルーターを構築する
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stores/search", h.handleSearch)
		r.Get("/stores/{storeID}/similar", h.handleSimilar)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/scores/recalculate", h.handleRecalculateAll)
			r.Post("/scores/pending", h.handleRecalculatePending)
			r.Post("/embeddings/batch", h.handleEmbeddingBatch)
			r.Post("/embeddings/stores/{storeID}", h.handleEmbeddingGenerate)
			r.Post("/embeddings/stores/{storeID}/pending", h.handleEmbeddingMarkPending)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

type menuSummaryResponse struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

type searchRowResponse struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Address            *string              `json:"address,omitempty"`
	Latitude           float64              `json:"latitude"`
	Longitude          float64              `json:"longitude"`
	HonbobLevel        *int                 `json:"honbob_level,omitempty"`
	DistanceMeters     float64              `json:"distance_meters"`
	WalkingMinutes     int                  `json:"walking_minutes"`
	MainImageURL       *string              `json:"main_image_url,omitempty"`
	RepresentativeMenu *menuSummaryResponse `json:"representative_menu,omitempty"`
	SeatTypes          []string             `json:"seat_types"`
	Saved              bool                 `json:"saved"`
}

type searchResponse struct {
	Stores     []searchRowResponse `json:"stores"`
	NextCursor *string             `json:"next_cursor,omitempty"`
	HasMore    bool                `json:"has_more"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	page, err := h.search.Search(r.Context(), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := searchResponse{
		Stores:  make([]searchRowResponse, 0, len(page.Rows)),
		HasMore: page.HasMore,
	}
	for _, row := range page.Rows {
		item := searchRowResponse{
			ID:             row.Store.ID.String(),
			Name:           row.Store.Name,
			Latitude:       row.Store.Location.Latitude,
			Longitude:      row.Store.Location.Longitude,
			DistanceMeters: row.DistanceMeters,
			WalkingMinutes: row.WalkingMinutes,
			SeatTypes:      make([]string, 0, len(row.SeatTypes)),
			Saved:          row.Saved,
		}
		if address, ok := row.Store.Address.Get(); ok {
			item.Address = &address
		}
		if level, ok := row.Store.HonbobLevel.Get(); ok {
			n := int(level)
			item.HonbobLevel = &n
		}
		if url, ok := row.MainImageURL.Get(); ok {
			item.MainImageURL = &url
		}
		if menu, ok := row.RepresentativeMenu.Get(); ok {
			item.RepresentativeMenu = &menuSummaryResponse{Name: menu.Name, Price: menu.Price}
		}
		for _, seatType := range row.SeatTypes {
			item.SeatTypes = append(item.SeatTypes, string(seatType))
		}
		resp.Stores = append(resp.Stores, item)
	}
	if cursor, ok := page.NextCursor.Get(); ok {
		resp.NextCursor = &cursor
	}

	writeJSON(w, http.StatusOK, resp)
}

type similarStoreResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	MainImageURL   *string `json:"main_image_url,omitempty"`
	Address        *string `json:"address,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	HonbobLevel    *int    `json:"honbob_level,omitempty"`
	CosineDistance float64 `json:"cosine_distance"`
}

type similarResponse struct {
	Stores []similarStoreResponse `json:"stores"`
}

func (h *Handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "storeID"))
	if err != nil {
		writeBadRequest(w, "invalid store id")
		return
	}

	similar, err := h.recommend.FindSimilar(r.Context(), storeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := similarResponse{Stores: make([]similarStoreResponse, 0, len(similar))}
	for _, s := range similar {
		item := similarStoreResponse{
			ID:             s.StoreID.String(),
			Name:           s.Name,
			Latitude:       s.Location.Latitude,
			Longitude:      s.Location.Longitude,
			CosineDistance: s.CosineDistance,
		}
		if url, ok := s.MainImageURL.Get(); ok {
			item.MainImageURL = &url
		}
		if address, ok := s.Address.Get(); ok {
			item.Address = &address
		}
		if level, ok := s.HonbobLevel.Get(); ok {
			n := int(level)
			item.HonbobLevel = &n
		}
		resp.Stores = append(resp.Stores, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

type recalculateResponse struct {
	Updated int `json:"updated"`
}

func (h *Handler) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	updated, err := h.scoring.RecalculateAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recalculateResponse{Updated: updated})
}

func (h *Handler) handleRecalculatePending(w http.ResponseWriter, r *http.Request) {
	updated, err := h.scoring.RecalculatePending(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recalculateResponse{Updated: updated})
}

type embeddingBatchResponse struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (h *Handler) handleEmbeddingBatch(w http.ResponseWriter, r *http.Request) {
	stats, err := h.embedding.ProcessPendingBatch(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, embeddingBatchResponse{
		Requested: stats.Requested,
		Succeeded: stats.Succeeded,
		Failed:    stats.Failed,
	})
}

func (h *Handler) handleEmbeddingGenerate(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "storeID"))
	if err != nil {
		writeBadRequest(w, "invalid store id")
		return
	}

	if err := h.embedding.GenerateForStore(r.Context(), storeID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// handleEmbeddingMarkPending は再生成トリガーを非同期に受け付ける
// 結果は待たず、次のバッチサイクルで処理される
func (h *Handler) handleEmbeddingMarkPending(w http.ResponseWriter, r *http.Request) {
	storeID, err := uuid.Parse(chi.URLParam(r, "storeID"))
	if err != nil {
		writeBadRequest(w, "invalid store id")
		return
	}

	h.embedding.TriggerReembedding(storeID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
