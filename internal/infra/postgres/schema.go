package postgres

import _ "embed"

// SchemaSQL はテーブル定義一式
// マイグレーションツールを挟まない環境での初期化と統合テストに使う
//
//go:embed schema.sql
var SchemaSQL string
