// Package selector は親リソースを視覚的に要約する代表サムネイルの選択を提供する。
// アカウントには1枚、コレクションには最大4枚の代表画像を選び、TTL付きでキャッシュする。
package selector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/albumview/internal/cache"
	"github.com/hitoshi/albumview/internal/model"
)

const (
	// DefaultPlaceholderURL は子リソースが存在しない場合の代替画像URL。
	DefaultPlaceholderURL = "https://via.placeholder.com/150?text=No+Image"
	// DefaultSetSize はコレクションの代表画像の最大枚数。
	DefaultSetSize = 4
)

// Source は代表画像の選択に必要な上流APIの取得操作。
type Source interface {
	AccountCollections(ctx context.Context, accountID int) ([]model.Collection, error)
	CollectionItems(ctx context.Context, collectionID int) ([]model.Item, error)
}

// Config は代表画像選択の設定。
type Config struct {
	// PlaceholderURL はコレクションまたはアイテムが0件の場合に返すURL。
	PlaceholderURL string
	// SetSize はRepresentativeSetForでcountが0以下の場合に使う枚数。
	SetSize int
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		PlaceholderURL: DefaultPlaceholderURL,
		SetSize:        DefaultSetSize,
	}
}

// Selector は代表画像を選択し、結果をキャッシュする。
// 上流APIのエラーは捕捉もリトライもせず、そのまま呼び出し元へ返す。
type Selector struct {
	source Source
	random RandomSource
	images *cache.Expiring[int, string]
	sets   *cache.Expiring[int, []string]
	logger *slog.Logger
	config Config
}

// NewSelector はSelectorの新しいインスタンスを生成する。
// imagesはアカウントID→代表画像URL、setsはコレクションID→代表画像URL列のキャッシュ。
func NewSelector(
	source Source,
	random RandomSource,
	images *cache.Expiring[int, string],
	sets *cache.Expiring[int, []string],
	logger *slog.Logger,
	config Config,
) *Selector {
	if random == nil {
		random = NewRandomSource()
	}
	if config.PlaceholderURL == "" {
		config.PlaceholderURL = DefaultPlaceholderURL
	}
	if config.SetSize <= 0 {
		config.SetSize = DefaultSetSize
	}
	return &Selector{
		source: source,
		random: random,
		images: images,
		sets:   sets,
		logger: logger,
		config: config,
	}
}

// PlaceholderURL は代替画像URLを返す。
func (s *Selector) PlaceholderURL() string {
	return s.config.PlaceholderURL
}

// RepresentativeImageFor はアカウントの代表画像URLを返す。
// キャッシュミス時はアカウントのコレクションから1つ、その中のアイテムから1つを
// 一様ランダムに選び、そのサムネイルURLをキャッシュする。
// コレクションまたはアイテムが0件の場合は代替画像URLを返し、キャッシュしない。
func (s *Selector) RepresentativeImageFor(ctx context.Context, accountID int) (string, error) {
	if url, ok := s.images.Get(accountID); ok {
		return url, nil
	}

	collections, err := s.source.AccountCollections(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("アカウント %d のコレクション取得に失敗しました: %w", accountID, err)
	}
	if len(collections) == 0 {
		return s.config.PlaceholderURL, nil
	}

	collection := collections[s.random.IntN(len(collections))]

	items, err := s.source.CollectionItems(ctx, collection.ID)
	if err != nil {
		return "", fmt.Errorf("コレクション %d のアイテム取得に失敗しました: %w", collection.ID, err)
	}
	if len(items) == 0 {
		s.logger.Debug("選択したコレクションにアイテムがないため代替画像を返します",
			slog.Int("account_id", accountID),
			slog.Int("collection_id", collection.ID),
		)
		return s.config.PlaceholderURL, nil
	}

	url := items[s.random.IntN(len(items))].ThumbnailURL
	s.images.Put(accountID, url)
	return url, nil
}

// RepresentativeSetFor はコレクションの代表画像URLを最大count枚返す。
// キャッシュミス時はアイテムをランダムに並べ替えた全順列をキャッシュし（0件も含む）、
// その先頭min(count, 件数)件を返す。countが0以下の場合は設定値を使う。
func (s *Selector) RepresentativeSetFor(ctx context.Context, collectionID, count int) ([]string, error) {
	if count <= 0 {
		count = s.config.SetSize
	}

	if urls, ok := s.sets.Get(collectionID); ok {
		return head(urls, count), nil
	}

	items, err := s.source.CollectionItems(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクション %d のアイテム取得に失敗しました: %w", collectionID, err)
	}

	shuffled := make([]model.Item, len(items))
	copy(shuffled, items)
	s.random.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	// 呼び出しごとにcountが異なっても同じ順列から切り出せるよう、全件を保持する
	urls := make([]string, len(shuffled))
	for i, it := range shuffled {
		urls[i] = it.ThumbnailURL
	}

	s.sets.Put(collectionID, urls)
	return head(urls, count), nil
}

// Clear は両方の代表画像キャッシュを空にする。
func (s *Selector) Clear() {
	s.images.Clear()
	s.sets.Clear()
}

// head はurlsの先頭n件のコピーを返す。キャッシュ内の配列を呼び出し元から保護する。
func head(urls []string, n int) []string {
	n = min(n, len(urls))
	out := make([]string, n)
	copy(out, urls[:n])
	return out
}
