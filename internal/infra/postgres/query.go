package postgres

import (
	"fmt"
	"strconv"
)

// queryArgs は動的に組み立てる SQL のプレースホルダを採番する
// 絞り込み条件の組み合わせが実行時に決まるため、静的なクエリ定義では表現できない
type queryArgs struct {
	args []any
}

// add は引数を登録し、対応するプレースホルダ（"$n"）を返す
func (q *queryArgs) add(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// haversineSQL は stores の座標列と基準点との距離（メートル）を計算する SQL 式を返す
// latPlaceholder / lonPlaceholder には基準点の緯度経度のプレースホルダを渡す
// acos の引数は浮動小数点誤差で ±1 をわずかに超えることがあるためクランプする
func haversineSQL(latPlaceholder, lonPlaceholder string) string {
	return fmt.Sprintf(
		"(6371000.0 * acos(least(1.0, greatest(-1.0,"+
			" cos(radians(%[1]s)) * cos(radians(s.latitude)) * cos(radians(s.longitude) - radians(%[2]s))"+
			" + sin(radians(%[1]s)) * sin(radians(s.latitude))))))",
		latPlaceholder, lonPlaceholder,
	)
}
