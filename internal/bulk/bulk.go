// Package bulk は兄弟リソースに対する複数リクエストの一括並行実行を提供する。
// 全リクエストを待たずに発行し、全件の完了を待って入力順に結果を返す。
// いずれかが失敗した場合は最初のエラーを返し、部分的な結果は破棄する。
package bulk

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchObserver はバッチサイズを受け取るインターフェース。
type BatchObserver interface {
	RecordBatchSize(size int)
}

// Coordinator は一括並行実行の設定を保持する。
// nilのCoordinatorは並列数無制限として扱う。
type Coordinator struct {
	limit    int
	observer BatchObserver
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
// limitが0以下の場合は並列数を制限せず、全リクエストを同時に発行する。
// observerはnilでもよい。
func NewCoordinator(limit int, observer BatchObserver) *Coordinator {
	if limit < 0 {
		limit = 0
	}
	return &Coordinator{limit: limit, observer: observer}
}

// Limit は並列数の上限を返す。0は無制限を表す。
func (c *Coordinator) Limit() int {
	if c == nil {
		return 0
	}
	return c.limit
}

// FetchAll はpathsの各要素に対してfetchを並行に実行し、入力順の結果を返す。
// 1件でも失敗した場合はnilと最初のエラーを返す。
// 最初の失敗以降、他のfetchに渡されるコンテキストはキャンセルされる。
func FetchAll[T any](
	ctx context.Context,
	c *Coordinator,
	paths []string,
	fetch func(ctx context.Context, path string) (T, error),
) ([]T, error) {
	return Map(ctx, c, paths, fetch)
}

// Map はinputsの各要素に対してfnを並行に実行し、入力順の結果を返す。
// 完了順序にかかわらず、results[i]はinputs[i]に対応する。
// 契約はFetchAllと同じく全件成功か全件失敗のいずれかである。
func Map[T, R any](
	ctx context.Context,
	c *Coordinator,
	inputs []T,
	fn func(ctx context.Context, in T) (R, error),
) ([]R, error) {
	if c != nil && c.observer != nil {
		c.observer.RecordBatchSize(len(inputs))
	}

	results := make([]R, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit := c.Limit(); limit > 0 {
		g.SetLimit(limit)
	}

	for i, in := range inputs {
		g.Go(func() error {
			r, err := fn(gctx, in)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
