// Package reconcile はIdPとストア間の不整合を回収するジョブを提供する。
// 削除フローでストア側の削除だけが失敗した場合などに残る孤児プロフィール
// （IdPにアカウントが存在しないプロフィール）を定期バッチで削除する。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/profman/internal/identity"
	"github.com/hitoshi/profman/internal/metrics"
	"github.com/hitoshi/profman/internal/repository"
)

// ReconcileJob は孤児プロフィールの回収ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type ReconcileJob struct {
	repo      repository.ProfileRepository
	idp       identity.UserManager
	collector metrics.MetricsCollector
	logger    *slog.Logger
}

// NewReconcileJob は新しいReconcileJobを生成する。
func NewReconcileJob(
	repo repository.ProfileRepository,
	idp identity.UserManager,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *ReconcileJob {
	return &ReconcileJob{
		repo:      repo,
		idp:       idp,
		collector: collector,
		logger:    logger,
	}
}

// Run は全プロフィールを走査し、IdPにアカウントが存在しないものを削除する。
//
// IdPへの問い合わせが失敗したプロフィールはスキップする。存在確認が取れない
// 限り削除はしない（誤削除よりも孤児の残留を選ぶ）。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *ReconcileJob) Run(ctx context.Context) error {
	start := time.Now()

	profiles, err := j.repo.ListAll(ctx)
	if err != nil {
		j.logger.Error("整合ジョブのプロフィール一覧取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("プロフィール一覧の取得に失敗: %w", err)
	}

	var removed, skipped int
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := j.idp.GetUser(ctx, p.UID)
		if err == nil {
			continue
		}
		if !errors.Is(err, identity.ErrUserNotFound) {
			// 確認が取れないプロフィールは削除しない
			skipped++
			j.logger.Warn("IdPのアカウント確認に失敗したためスキップします",
				slog.String("user_id", p.UID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := j.repo.DeleteByUID(ctx, p.UID); err != nil {
			skipped++
			j.logger.Error("孤児プロフィールの削除に失敗しました",
				slog.String("user_id", p.UID),
				slog.String("error", err.Error()),
			)
			continue
		}

		removed++
		j.logger.Info("orphan profile removed",
			slog.String("user_id", p.UID),
		)
	}

	if removed > 0 {
		j.collector.RecordOrphanProfilesRemoved(removed)
	}

	duration := time.Since(start)
	j.logger.Info("整合ジョブが完了しました",
		slog.Int("checked_count", len(profiles)),
		slog.Int("removed_count", removed),
		slog.Int("skipped_count", skipped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunLoop は指定間隔でRunを繰り返し実行する。ctxのキャンセルで停止する。
func (j *ReconcileJob) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.logger.Error("整合ジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}
