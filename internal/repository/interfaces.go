// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/livenex/internal/model"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しない場合に返される。
	// 検索系メソッドは見つからない場合にnil, nilを返す。
	ErrNotFound = errors.New("record not found")

	// ErrIdentityConflict は (provider, provider_user_id) の一意制約違反を表す。
	// 並行する連携処理が先に同じ外部アカウントを登録した場合に発生する。
	ErrIdentityConflict = errors.New("identity already exists")

	// ErrEmailTaken はローカルアカウントのメールアドレス重複を表す。
	ErrEmailTaken = errors.New("email already registered")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はローカル資格情報を持つユーザーをメールアドレスで検索する。
	// 大文字小文字は区別しない。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はローカルユーザーを作成する。メール重複時はErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// identityの一意制約違反時はErrIdentityConflictを返し、ユーザーも作成されない。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// List は全ユーザーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、payments、tickets、live_streamsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error)

	// FindByUserAndProvider はユーザーの指定IdPのidentityを取得する。見つからない場合はnilを返す。
	FindByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.Identity, error)

	// ListByUserID はユーザーの連携済みidentity一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Identity, error)

	// Upsert は (user_id, provider) をキーにidentityを作成または上書きする。
	// 外部アカウントが別ユーザーに登録済みの場合はErrIdentityConflictを返す。
	Upsert(ctx context.Context, identity *model.Identity) error

	// UpdateTokens は既存identityのトークンとプロフィールを更新する。
	// リフレッシュトークンが空の場合は既存の値を保持する。
	UpdateTokens(ctx context.Context, identity *model.Identity) error
}

// RevocationRepository は失効済みセッション（jti）の永続化インターフェース。
type RevocationRepository interface {
	// Revoke はjtiを失効リストに追加する。既に登録済みの場合は何もしない。
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error

	// IsRevoked はjtiが失効済みかどうかを返す。
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpired は有効期限を過ぎた失効レコードを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// PaymentRepository は決済データの永続化インターフェース。
type PaymentRepository interface {
	// Create は注文作成時の決済レコードを登録する。
	Create(ctx context.Context, payment *model.Payment) error

	// FindByOrderID は注文IDで決済を取得する。見つからない場合はnilを返す。
	FindByOrderID(ctx context.Context, orderID string) (*model.Payment, error)

	// MarkPaid は未決済の注文を決済完了に更新する。
	// 対象が存在しないか既に決済済みの場合はErrNotFoundを返す。
	MarkPaid(ctx context.Context, orderID, paymentID string, paidAt, expiresAt time.Time) error

	// FindActiveByUserID は指定時刻に有効な決済のうち最も遅く失効するものを返す。
	// 見つからない場合はnilを返す。
	FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Payment, error)

	// DeleteStaleUnpaid はbefore以前に作成された未決済注文を削除し、削除件数を返す。
	DeleteStaleUnpaid(ctx context.Context, before time.Time) (int64, error)
}

// TicketRepository はサポートチケットの永続化インターフェース。
type TicketRepository interface {
	// Create はチケットを作成する。
	Create(ctx context.Context, ticket *model.Ticket) error

	// FindByID は指定IDのチケットを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Ticket, error)

	// ListByUserID はユーザーのチケットを作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Ticket, error)

	// ListAll は全チケットを作成日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.Ticket, error)

	// Reply はチケットに回答を記録しステータスをansweredにする。
	// 対象が存在しない場合はErrNotFoundを返す。
	Reply(ctx context.Context, id, reply string, repliedAt time.Time) error
}

// LiveRepository はライブ配信メタデータの永続化インターフェース。
type LiveRepository interface {
	// Create はライブ配信を登録する。
	Create(ctx context.Context, live *model.LiveStream) error

	// ListPastByUserID はbefore以前に予定されていた配信を新しい順に返す。
	ListPastByUserID(ctx context.Context, userID string, before time.Time) ([]*model.LiveStream, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
