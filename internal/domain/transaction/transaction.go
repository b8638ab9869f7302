package transaction

import "context"

// Tx はトランザクション（アトミックな処理単位）を表すインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Tx interface {
	// Commit はトランザクションをコミットする
	Commit() error
	// Rollback はトランザクションをロールバックする
	// コミット済みの場合は何もしない
	Rollback() error
}

// Options はトランザクション開始時のオプション
type Options struct {
	// ReadOnly は読み取り専用のスナップショットを要求する
	// 複数の読み取りが同一時点の状態を参照することを保証する
	ReadOnly bool
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	// Begin は新しいトランザクションを開始する
	Begin(ctx context.Context, opts Options) (Tx, error)
}
