package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/honbob-navi/internal/core/search"
	"github.com/jinford/honbob-navi/internal/core/store"
)

// 統合テストは pgvector 入りの PostgreSQL コンテナを起動する
// Docker が使えない環境ではスキップする

const embeddingDim = 1536

func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dockerPool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := dockerPool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	resource, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=honbob",
			"POSTGRES_PASSWORD=honbob",
			"POSTGRES_DB=honbob_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = dockerPool.Purge(resource)
	})
	_ = resource.Expire(300)

	connString := fmt.Sprintf(
		"host=localhost port=%s user=honbob password=honbob dbname=honbob_test sslmode=disable",
		resource.GetPort("5432/tcp"),
	)

	var pool *pgxpool.Pool
	err = dockerPool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cfg, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return err
		}
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = pool.Exec(ctx, SchemaSQL)
	require.NoError(t, err)
	pool.Close()

	// pgvector 型の登録は vector 拡張の作成後でないとできない
	cfg, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	cfg.AfterConnect = pgxvector.RegisterTypes
	pool, err = pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// testVector は先頭2成分だけ指定した1536次元のベクトルを作る
func testVector(x, y float32) []float32 {
	v := make([]float32, embeddingDim)
	v[0] = x
	v[1] = y
	return v
}

type seededStore struct {
	id   uuid.UUID
	name string
}

func insertStore(t *testing.T, pool *pgxpool.Pool, name string, lat, lon float64, level int, category string, score any) seededStore {
	t.Helper()
	id := uuid.New()
	var levelArg any
	if level > 0 {
		levelArg = level
	}
	var categoryArg any
	if category != "" {
		categoryArg = category
	}
	_, err := pool.Exec(context.Background(), `
		INSERT INTO stores (id, name, latitude, longitude, honbob_level, primary_category, internal_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, name, lat, lon, levelArg, categoryArg, score)
	require.NoError(t, err)
	return seededStore{id: id, name: name}
}

func insertMenu(t *testing.T, pool *pgxpool.Pool, storeID uuid.UUID, name string, price int, recommend bool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"INSERT INTO menus (store_id, name, price, recommend) VALUES ($1, $2, $3, $4)",
		storeID, name, price, recommend)
	require.NoError(t, err)
}

func insertSeat(t *testing.T, pool *pgxpool.Pool, storeID uuid.UUID, seatType store.SeatType) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"INSERT INTO seat_options (store_id, seat_type) VALUES ($1, $2)",
		storeID, string(seatType))
	require.NoError(t, err)
}

func TestPostgresRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := setupTestPool(t)
	ctx := context.Background()

	// 基準点: ソウル市庁。緯度0.001度 ≒ 111m
	const baseLat, baseLon = 37.5663, 126.9779
	center := store.Coordinate{Latitude: baseLat, Longitude: baseLon}

	near := insertStore(t, pool, "가까운 가게", baseLat+0.001, baseLon, 1, "한식", 90.0)
	mid := insertStore(t, pool, "중간 가게", baseLat+0.005, baseLon, 2, "일식", 40.0)
	farther := insertStore(t, pool, "먼 가게", baseLat+0.010, baseLon, 3, "양식", nil)
	outside := insertStore(t, pool, "권역 밖 가게", baseLat+0.100, baseLon, 1, "한식", 95.0)

	insertMenu(t, pool, near.id, "김치찌개", 9000, true)
	insertMenu(t, pool, near.id, "비빔밥", 12000, false)
	insertMenu(t, pool, mid.id, "스시 세트", 18000, false)
	insertSeat(t, pool, near.id, store.SeatTypeForOne)
	insertSeat(t, pool, near.id, store.SeatTypeBarTable)
	insertSeat(t, pool, mid.id, store.SeatTypeForTwo)

	searchRepo := NewSearchRepository(pool)

	t.Run("半径内の店舗が距離昇順で返る", func(t *testing.T) {
		hits, err := searchRepo.SearchStoreHits(ctx, search.HitQuery{
			Filter: search.Filter{Center: center, RadiusMeters: 5000},
			Sort:   search.SortByDistance,
			Rank:   search.DefaultRankExpression(),
			Limit:  10,
		})
		require.NoError(t, err)

		require.Len(t, hits, 3)
		assert.Equal(t, near.id, hits[0].StoreID)
		assert.Equal(t, mid.id, hits[1].StoreID)
		assert.Equal(t, farther.id, hits[2].StoreID)
		// おおよその距離の検証（haversine）
		assert.InDelta(t, 111, hits[0].DistanceMeters, 5)
		assert.InDelta(t, 556, hits[1].DistanceMeters, 10)
	})

	t.Run("BoundingBoxは半径より優先される", func(t *testing.T) {
		// near だけを含む狭い範囲
		box := store.BoundingBox{
			SouthWest: store.Coordinate{Latitude: baseLat + 0.0005, Longitude: baseLon - 0.01},
			NorthEast: store.Coordinate{Latitude: baseLat + 0.002, Longitude: baseLon + 0.01},
		}
		hits, err := searchRepo.SearchStoreHits(ctx, search.HitQuery{
			Filter: search.Filter{Center: center, RadiusMeters: 5000, Box: mo.Some(box)},
			Sort:   search.SortByDistance,
			Rank:   search.DefaultRankExpression(),
			Limit:  10,
		})
		require.NoError(t, err)

		require.Len(t, hits, 1)
		assert.Equal(t, near.id, hits[0].StoreID)
	})

	t.Run("レベルとカテゴリで絞り込める", func(t *testing.T) {
		hits, err := searchRepo.SearchStoreHits(ctx, search.HitQuery{
			Filter: search.Filter{
				Center:       center,
				RadiusMeters: 5000,
				Levels:       []store.HonbobLevel{store.HonbobLevelOne, store.HonbobLevelTwo},
				Categories:   []string{"일식"},
			},
			Sort:  search.SortByDistance,
			Rank:  search.DefaultRankExpression(),
			Limit: 10,
		})
		require.NoError(t, err)

		require.Len(t, hits, 1)
		assert.Equal(t, mid.id, hits[0].StoreID)
	})

	t.Run("価格と座席のフィルタは重複なく返る", func(t *testing.T) {
		// near は2メニュー・2座席を持つが、Dedupe により1行に集約される
		hits, err := searchRepo.SearchStoreHits(ctx, search.HitQuery{
			Filter: search.Filter{
				Center:       center,
				RadiusMeters: 5000,
				MinPrice:     mo.Some(8000),
				MaxPrice:     mo.Some(13000),
				SeatTypes:    []store.SeatType{store.SeatTypeForOne, store.SeatTypeBarTable},
			},
			Sort:   search.SortByDistance,
			Rank:   search.DefaultRankExpression(),
			Limit:  10,
			Dedupe: true,
		})
		require.NoError(t, err)

		require.Len(t, hits, 1)
		assert.Equal(t, near.id, hits[0].StoreID)
	})

	t.Run("キーセットページネーションは全件を重複なく連結する", func(t *testing.T) {
		for _, sort := range []search.Sort{search.SortByDistance, search.SortByScore} {
			var collected []uuid.UUID
			cursor := mo.None[search.Cursor]()
			for range 5 {
				hits, err := searchRepo.SearchStoreHits(ctx, search.HitQuery{
					Filter: search.Filter{Center: center, RadiusMeters: 5000},
					Sort:   sort,
					Rank:   search.DefaultRankExpression(),
					Cursor: cursor,
					Limit:  2,
				})
				require.NoError(t, err)
				if len(hits) == 0 {
					break
				}
				// ページをまたいでも並びは単調
				for _, h := range hits {
					collected = append(collected, h.StoreID)
				}
				last := hits[len(hits)-1]
				cursor = mo.Some(search.Cursor{Key: last.RankKey, ID: last.StoreID})
			}

			assert.Len(t, collected, 3, "sort=%s", sort)
			seen := map[uuid.UUID]bool{}
			for _, id := range collected {
				assert.False(t, seen[id], "duplicate store in pagination (sort=%s)", sort)
				seen[id] = true
			}
		}
	})

	t.Run("キーセットページネーションはソートキーが同値でも破綻しない", func(t *testing.T) {
		// 同一座標・同一スコアの2店舗は距離も rank_key も完全に一致する
		tieA := insertStore(t, pool, "동점 가게 A", baseLat+0.003, baseLon, 2, "한식", 70.0)
		tieB := insertStore(t, pool, "동점 가게 B", baseLat+0.003, baseLon, 2, "한식", 70.0)
		defer func() {
			_, err := pool.Exec(ctx, "DELETE FROM stores WHERE id = ANY($1)", []uuid.UUID{tieA.id, tieB.id})
			require.NoError(t, err)
		}()

		// 同値キーは id 昇順で解決される
		lowID, highID := tieA.id, tieB.id
		if highID.String() < lowID.String() {
			lowID, highID = highID, lowID
		}

		for _, sort := range []search.Sort{search.SortByDistance, search.SortByScore} {
			var collected []uuid.UUID
			cursor := mo.None[search.Cursor]()
			for range 5 {
				hits, err := searchRepo.SearchStoreHits(ctx, search.HitQuery{
					Filter: search.Filter{Center: center, RadiusMeters: 5000},
					Sort:   sort,
					Rank:   search.DefaultRankExpression(),
					Cursor: cursor,
					Limit:  2,
				})
				require.NoError(t, err)
				if len(hits) == 0 {
					break
				}
				for _, h := range hits {
					collected = append(collected, h.StoreID)
				}
				last := hits[len(hits)-1]
				cursor = mo.Some(search.Cursor{Key: last.RankKey, ID: last.StoreID})
			}

			// 同値の2店舗がページ境界をまたいでも、欠落も重複も起きない
			assert.Len(t, collected, 5, "sort=%s", sort)
			seen := map[uuid.UUID]bool{}
			for _, id := range collected {
				assert.False(t, seen[id], "duplicate store in pagination (sort=%s)", sort)
				seen[id] = true
			}

			lowIdx, highIdx := -1, -1
			for i, id := range collected {
				if id == lowID {
					lowIdx = i
				}
				if id == highID {
					highIdx = i
				}
			}
			require.NotEqual(t, -1, lowIdx, "sort=%s", sort)
			require.NotEqual(t, -1, highIdx, "sort=%s", sort)
			assert.Less(t, lowIdx, highIdx, "tie must resolve by id ascending (sort=%s)", sort)
		}
	})

	t.Run("スコア順は内部スコア未計算をデフォルト値で扱う", func(t *testing.T) {
		hits, err := searchRepo.SearchStoreHits(ctx, search.HitQuery{
			Filter: search.Filter{Center: center, RadiusMeters: 5000},
			Sort:   search.SortByScore,
			Rank:   search.DefaultRankExpression(),
			Limit:  10,
		})
		require.NoError(t, err)
		require.Len(t, hits, 3)

		// rank_key は SQL とプロセス内評価で一致する
		rank := search.DefaultRankExpression()
		scores := map[uuid.UUID]mo.Option[float64]{
			near.id:    mo.Some(90.0),
			mid.id:     mo.Some(40.0),
			farther.id: mo.None[float64](),
		}
		for _, h := range hits {
			assert.InDelta(t, rank.Eval(scores[h.StoreID], h.DistanceMeters), h.RankKey, 1e-6)
		}
		// 並びは rank_key 降順
		assert.GreaterOrEqual(t, hits[0].RankKey, hits[1].RankKey)
		assert.GreaterOrEqual(t, hits[1].RankKey, hits[2].RankKey)
	})

	t.Run("フェーズ2の一括取得", func(t *testing.T) {
		ids := []uuid.UUID{near.id, mid.id}

		stores, err := searchRepo.GetStoresByIDs(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, stores, 2)
		assert.Equal(t, "가까운 가게", stores[near.id].Name)

		menus, err := searchRepo.GetRepresentativeMenus(ctx, ids)
		require.NoError(t, err)
		// recommend 付きのメニューが優先される
		assert.Equal(t, search.MenuSummary{Name: "김치찌개", Price: 9000}, menus[near.id])

		seats, err := searchRepo.GetSeatTypesByStoreIDs(ctx, ids)
		require.NoError(t, err)
		assert.ElementsMatch(t, []store.SeatType{store.SeatTypeForOne, store.SeatTypeBarTable}, seats[near.id])
	})

	t.Run("保存済みフラグ", func(t *testing.T) {
		userID := uuid.New()
		_, err := pool.Exec(ctx, "INSERT INTO saved_stores (user_id, store_id) VALUES ($1, $2)", userID, near.id)
		require.NoError(t, err)

		saved, err := searchRepo.GetSavedStoreIDs(ctx, userID, []uuid.UUID{near.id, mid.id})
		require.NoError(t, err)
		assert.True(t, saved[near.id])
		assert.False(t, saved[mid.id])
	})

	t.Run("スコアバッチ", func(t *testing.T) {
		scoringRepo := NewScoringRepository(pool)

		// farther は internal_score が NULL のため pending 対象
		targets, err := scoringRepo.ListScoreTargets(ctx, true)
		require.NoError(t, err)
		targetIDs := make([]uuid.UUID, 0, len(targets))
		for _, tg := range targets {
			targetIDs = append(targetIDs, tg.StoreID)
		}
		assert.Contains(t, targetIDs, farther.id)
		assert.NotContains(t, targetIDs, near.id)

		updated, err := scoringRepo.UpdateInternalScores(ctx, map[uuid.UUID]float64{farther.id: 55})
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		// 書き戻し後は pending 対象から外れる
		targets, err = scoringRepo.ListScoreTargets(ctx, true)
		require.NoError(t, err)
		for _, tg := range targets {
			assert.NotEqual(t, farther.id, tg.StoreID)
		}
	})

	t.Run("埋め込みの保存とステータス遷移", func(t *testing.T) {
		embRepo := NewEmbeddingRepository(pool)

		targets, err := embRepo.ListEmbeddingTargets(ctx, 100)
		require.NoError(t, err)
		// 埋め込み行がまだない店舗はすべて対象
		assert.GreaterOrEqual(t, len(targets), 3)

		profileOpt, err := embRepo.GetStoreProfile(ctx, near.id)
		require.NoError(t, err)
		profile, ok := profileOpt.Get()
		require.True(t, ok)
		assert.Equal(t, "가까운 가게", profile.Name)
		assert.Len(t, profile.Menus, 2)

		require.NoError(t, embRepo.SaveEmbedding(ctx, near.id, testVector(1, 0)))
		require.NoError(t, embRepo.SaveEmbedding(ctx, mid.id, testVector(0.9, 0.1)))
		require.NoError(t, embRepo.SaveEmbedding(ctx, outside.id, testVector(0, 1)))
		require.NoError(t, embRepo.MarkEmbeddingFailed(ctx, farther.id))

		// COMPLETED になった店舗は対象から外れ、FAILED は残る
		targets, err = embRepo.ListEmbeddingTargets(ctx, 100)
		require.NoError(t, err)
		targetIDs := make([]uuid.UUID, 0, len(targets))
		for _, tg := range targets {
			targetIDs = append(targetIDs, tg.StoreID)
		}
		assert.NotContains(t, targetIDs, near.id)
		assert.Contains(t, targetIDs, farther.id)

		// PENDING に戻すと再び対象になる
		require.NoError(t, embRepo.MarkEmbeddingPending(ctx, mid.id))
		targets, err = embRepo.ListEmbeddingTargets(ctx, 100)
		require.NoError(t, err)
		found := false
		for _, tg := range targets {
			if tg.StoreID == mid.id {
				found = true
			}
		}
		assert.True(t, found)
		require.NoError(t, embRepo.SaveEmbedding(ctx, mid.id, testVector(0.9, 0.1)))
	})

	t.Run("類似店舗レコメンド", func(t *testing.T) {
		recRepo := NewRecommendRepository(pool)
		embRepo := NewEmbeddingRepository(pool)

		// 地理・レベル条件は満たすが埋め込みが未完了の店舗
		pending := insertStore(t, pool, "보류 가게", baseLat+0.002, baseLon, 1, "한식", 60.0)
		defer func() {
			_, err := pool.Exec(ctx, "DELETE FROM stores WHERE id = $1", pending.id)
			require.NoError(t, err)
		}()
		require.NoError(t, embRepo.MarkEmbeddingPending(ctx, pending.id))

		// 基準はレベル2の mid。候補はレベルが基準以下（=入りやすい）に限られる
		refOpt, err := recRepo.GetStoreByID(ctx, mid.id)
		require.NoError(t, err)
		ref, ok := refOpt.Get()
		require.True(t, ok)

		candidates, err := recRepo.ListCandidateIDs(ctx, ref, 3000)
		require.NoError(t, err)
		assert.NotContains(t, candidates, mid.id, "基準自身は候補に含めない")
		assert.NotContains(t, candidates, outside.id, "半径外は除外")
		assert.NotContains(t, candidates, farther.id, "レベルが基準より高い店舗は除外")
		require.Contains(t, candidates, near.id)
		require.Contains(t, candidates, pending.id, "地理・レベルの候補段階ではステータスを見ない")

		ranked, err := recRepo.RankByEmbedding(ctx, mid.id, candidates, 5)
		require.NoError(t, err)
		require.Len(t, ranked, 1)
		assert.Equal(t, near.id, ranked[0].StoreID)
		assert.Greater(t, ranked[0].CosineDistance, 0.0)
		// COMPLETED 以外の候補はランキングに決して現れない
		for _, rs := range ranked {
			assert.NotEqual(t, pending.id, rs.StoreID)
		}
	})

	t.Run("存在しない店舗は None", func(t *testing.T) {
		recRepo := NewRecommendRepository(pool)
		opt, err := recRepo.GetStoreByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.True(t, opt.IsAbsent())
	})
}
