// Package worker はキャッシュを温めるバックグラウンド処理を提供する。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/albumview/internal/model"
)

// defaultMaxConcurrency はコレクション一覧を並行に温める際のデフォルト並列数。
const defaultMaxConcurrency = 4

// Entries はウォームアップで実行する画面のエントリー操作。browse.Controllerが実装する。
type Entries interface {
	EnterAccountList(ctx context.Context) (*model.AccountListVM, error)
	EnterCollectionList(ctx context.Context, accountID int) (*model.CollectionListVM, error)
}

// Result は1回のウォームアップの結果。
type Result struct {
	Accounts         int
	CollectionLists  int
	FailedAccountIDs []int
	Duration         time.Duration
}

// Warmer はアカウント一覧と各アカウントのコレクション一覧を生成し、
// 構造キャッシュと代表画像キャッシュを事前に埋める。
type Warmer struct {
	entries        Entries
	logger         *slog.Logger
	maxConcurrency int
}

// NewWarmer はWarmerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewWarmer(entries Entries, logger *slog.Logger, maxConcurrency int) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Warmer{
		entries:        entries,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は起動直後に1回、その後interval間隔でウォームアップを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Warmer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("ウォームアップを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", w.maxConcurrency),
	)

	w.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ウォームアップを停止しました")
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *Warmer) runLogged(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("ウォームアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はアカウント一覧を1回生成し、続けて各アカウントのコレクション一覧を
// 最大maxConcurrency件ずつ並行に生成する。
// アカウント一覧の失敗はエラーとして返す。コレクション一覧の失敗はログに記録して続行する。
func (w *Warmer) RunOnce(ctx context.Context) (*Result, error) {
	start := time.Now()

	vm, err := w.entries.EnterAccountList(ctx)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の生成に失敗しました: %w", err)
	}

	result := &Result{Accounts: len(vm.Accounts)}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, w.maxConcurrency)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		warmed atomic.Int64
	)

	for _, account := range vm.Accounts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(accountID int) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := w.entries.EnterCollectionList(ctx, accountID); err != nil {
				w.logger.Warn("コレクション一覧のウォームアップに失敗しました",
					slog.Int("account_id", accountID),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				result.FailedAccountIDs = append(result.FailedAccountIDs, accountID)
				mu.Unlock()
				return
			}
			warmed.Add(1)
		}(account.ID)
	}

	wg.Wait()

	result.CollectionLists = int(warmed.Load())
	result.Duration = time.Since(start)

	w.logger.Info("ウォームアップが完了しました",
		slog.Int("account_count", result.Accounts),
		slog.Int("collection_list_count", result.CollectionLists),
		slog.Int("failed_count", len(result.FailedAccountIDs)),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)

	return result, nil
}
