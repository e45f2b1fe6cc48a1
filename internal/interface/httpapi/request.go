package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jinford/honbob-navi/internal/core/search"
	"github.com/jinford/honbob-navi/internal/core/store"
	"github.com/samber/mo"
)

// parseSearchParams はクエリ文字列を検索リクエストに変換する
//
// lat / lng は必須。sw_lat / sw_lng / ne_lat / ne_lng の4つが揃っている場合は
// 地図表示範囲検索になり、radius より優先される
func parseSearchParams(r *http.Request) (search.Params, error) {
	q := r.URL.Query()
	var params search.Params

	lat, err := requireFloat(q.Get("lat"), "lat")
	if err != nil {
		return params, err
	}
	lng, err := requireFloat(q.Get("lng"), "lng")
	if err != nil {
		return params, err
	}
	params.Filter.Center = store.Coordinate{Latitude: lat, Longitude: lng}

	box, err := parseBoundingBox(q.Get("sw_lat"), q.Get("sw_lng"), q.Get("ne_lat"), q.Get("ne_lng"))
	if err != nil {
		return params, err
	}
	params.Filter.Box = box

	if v := q.Get("radius"); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			return params, fmt.Errorf("invalid radius: %q", v)
		}
		params.Filter.RadiusMeters = radius
	}

	levels, err := search.ParseLevels(splitCSV(q.Get("levels")))
	if err != nil {
		return params, err
	}
	params.Filter.Levels = levels

	params.Filter.Categories = splitCSV(q.Get("categories"))

	if v := q.Get("min_price"); v != "" {
		price, err := strconv.Atoi(v)
		if err != nil || price < 0 {
			return params, fmt.Errorf("invalid min_price: %q", v)
		}
		params.Filter.MinPrice = mo.Some(price)
	}
	if v := q.Get("max_price"); v != "" {
		price, err := strconv.Atoi(v)
		if err != nil || price < 0 {
			return params, fmt.Errorf("invalid max_price: %q", v)
		}
		params.Filter.MaxPrice = mo.Some(price)
	}
	if minPrice, ok := params.Filter.MinPrice.Get(); ok {
		if maxPrice, ok := params.Filter.MaxPrice.Get(); ok && minPrice > maxPrice {
			return params, fmt.Errorf("min_price must not exceed max_price")
		}
	}

	for _, v := range splitCSV(q.Get("seat_types")) {
		seatType, err := store.ParseSeatType(v)
		if err != nil {
			return params, err
		}
		params.Filter.SeatTypes = append(params.Filter.SeatTypes, seatType)
	}

	params.Sort = search.ParseSort(q.Get("sort"))
	params.CursorToken = q.Get("cursor")

	if v := q.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return params, fmt.Errorf("invalid size: %q", v)
		}
		params.PageSize = size
	}

	userID, err := parseUserID(r)
	if err != nil {
		return params, err
	}
	params.UserID = userID

	return params, nil
}

// parseUserID は保存済みフラグ解決用のユーザーIDをヘッダから読む
// ヘッダがなければ匿名検索として扱う
func parseUserID(r *http.Request) (mo.Option[uuid.UUID], error) {
	v := r.Header.Get("X-User-ID")
	if v == "" {
		return mo.None[uuid.UUID](), nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return mo.None[uuid.UUID](), fmt.Errorf("invalid X-User-ID header: %q", v)
	}
	return mo.Some(id), nil
}

func parseBoundingBox(swLat, swLng, neLat, neLng string) (mo.Option[store.BoundingBox], error) {
	none := mo.None[store.BoundingBox]()
	values := []string{swLat, swLng, neLat, neLng}

	present := 0
	for _, v := range values {
		if v != "" {
			present++
		}
	}
	if present == 0 {
		return none, nil
	}
	if present != len(values) {
		return none, fmt.Errorf("bounding box requires all of sw_lat, sw_lng, ne_lat, ne_lng")
	}

	parsed := make([]float64, len(values))
	names := []string{"sw_lat", "sw_lng", "ne_lat", "ne_lng"}
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return none, fmt.Errorf("invalid %s: %q", names[i], v)
		}
		parsed[i] = f
	}

	box := store.BoundingBox{
		SouthWest: store.Coordinate{Latitude: parsed[0], Longitude: parsed[1]},
		NorthEast: store.Coordinate{Latitude: parsed[2], Longitude: parsed[3]},
	}
	if box.SouthWest.Latitude > box.NorthEast.Latitude || box.SouthWest.Longitude > box.NorthEast.Longitude {
		return none, fmt.Errorf("bounding box corners are reversed")
	}
	return mo.Some(box), nil
}

func requireFloat(value, name string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, value)
	}
	return f, nil
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
