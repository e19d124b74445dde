// Package cleanup は不要になった認証・決済データの定期削除ジョブを提供する。
// 有効期限を過ぎたセッション失効レコードと、一定期間決済されなかった注文を削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/livenex/internal/metrics"
)

// 削除対象（メトリクスのtargetラベル）
const (
	TargetRevocations   = "revoked_sessions"
	TargetUnpaidOrders  = "unpaid_orders"
	defaultUnpaidMaxAge = 7 * 24 * time.Hour
)

// RevocationPurger は有効期限切れの失効レコードを削除する。
// repository.RevocationRepositoryの部分集合として定義する。
type RevocationPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// OrderPurger はbefore以前に作成された未決済注文を削除する。
// repository.PaymentRepositoryの部分集合として定義する。
type OrderPurger interface {
	DeleteStaleUnpaid(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は定期実行のバッチジョブ。削除はいずれも冪等。
type CleanupJob struct {
	revocations RevocationPurger
	orders      OrderPurger
	collector   metrics.MetricsCollector
	logger      *slog.Logger
	now         func() time.Time

	// UnpaidMaxAge は未決済注文の保持期間（デフォルト: 7日）
	UnpaidMaxAge time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// revocationsはnil可（失効リストを使わない構成）。
func NewCleanupJob(
	revocations RevocationPurger,
	orders OrderPurger,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		revocations:  revocations,
		orders:       orders,
		collector:    collector,
		logger:       logger,
		now:          time.Now,
		UnpaidMaxAge: defaultUnpaidMaxAge,
	}
}

// Run は全ての削除対象を1回処理する。
// 1つの対象が失敗しても残りの対象は処理し、失敗をまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	var errs []error

	if j.revocations != nil {
		errs = append(errs, j.purge(ctx, TargetRevocations, j.revocations.DeleteExpired))
	}
	if j.orders != nil {
		before := j.now().Add(-j.UnpaidMaxAge)
		errs = append(errs, j.purge(ctx, TargetUnpaidOrders, func(ctx context.Context) (int64, error) {
			return j.orders.DeleteStaleUnpaid(ctx, before)
		}))
	}

	return errors.Join(errs...)
}

func (j *CleanupJob) purge(ctx context.Context, target string, fn func(context.Context) (int64, error)) error {
	start := time.Now()

	deletedCount, err := fn(ctx)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%sのクリーンアップに失敗: %w", target, err)
	}

	j.collector.RecordCleanupDeleted(target, deletedCount)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.String("target", target),
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
