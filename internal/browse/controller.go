// Package browse はアカウント→コレクション→アイテムの階層ナビゲーションを提供する。
// 各画面のエントリー操作は必要なデータを上流APIから集め、表示層向けのビューモデルを返す。
package browse

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/albumview/internal/bulk"
	"github.com/hitoshi/albumview/internal/cache"
	"github.com/hitoshi/albumview/internal/model"
	"github.com/hitoshi/albumview/internal/transport"
)

// Source はナビゲーションに必要な上流APIの取得操作。
// transport.Resourcesが実装する。
type Source interface {
	Accounts(ctx context.Context) ([]model.Account, error)
	Account(ctx context.Context, id int) (*model.Account, error)
	CollectionsAt(ctx context.Context, path string) ([]model.Collection, error)
	Collection(ctx context.Context, id int) (*model.Collection, error)
	CollectionItems(ctx context.Context, collectionID int) ([]model.Item, error)
	Item(ctx context.Context, id int) (*model.Item, error)
}

// Representatives は代表画像の選択操作。selector.Selectorが実装する。
type Representatives interface {
	RepresentativeImageFor(ctx context.Context, accountID int) (string, error)
	RepresentativeSetFor(ctx context.Context, collectionID, count int) ([]string, error)
	Clear()
}

// Sanitizer はビューモデルに載せる文字列を無害化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Recorder は画面遷移の結果を受け取るインターフェース。
type Recorder interface {
	RecordNavigation(view string, success bool)
}

// Deps はNewControllerに必要な依存関係をまとめた構造体。
// Collections、Items、Sanitizer、Recorder、Loggerは省略可能。
type Deps struct {
	Source          Source
	Representatives Representatives
	Coordinator     *bulk.Coordinator

	// Collections はアカウントID→コレクション一覧の構造キャッシュ（TTLなし）。
	// アカウント一覧の描画ごとに上書きされる。
	Collections *cache.Store[int, []model.Collection]
	// Items はコレクションID→アイテム一覧のメモ（TTLなし、無効化しない）。
	Items *cache.Store[int, []model.Item]

	Sanitizer Sanitizer
	Recorder  Recorder
	Logger    *slog.Logger

	// SetSize はコレクションごとの代表画像の枚数（0以下はSelector側の既定値）。
	SetSize int
}

// Controller は各画面のエントリー操作を実行する。
// 複数のエントリー操作を並行に呼び出してよい。同じキーへの同時書き込みは後勝ちとなる。
type Controller struct {
	source      Source
	reps        Representatives
	coordinator *bulk.Coordinator
	collections *cache.Store[int, []model.Collection]
	items       *cache.Store[int, []model.Item]
	itemsFlight singleflight.Group
	sanitizer   Sanitizer
	recorder    Recorder
	logger      *slog.Logger
	setSize     int
}

// NewController はControllerの新しいインスタンスを生成する。
func NewController(deps Deps) *Controller {
	c := &Controller{
		source:      deps.Source,
		reps:        deps.Representatives,
		coordinator: deps.Coordinator,
		collections: deps.Collections,
		items:       deps.Items,
		sanitizer:   deps.Sanitizer,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		setSize:     deps.SetSize,
	}
	if c.collections == nil {
		c.collections = cache.NewStore[int, []model.Collection]()
	}
	if c.items == nil {
		c.items = cache.NewStore[int, []model.Item]()
	}
	if c.sanitizer == nil {
		c.sanitizer = passthrough{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// EnterAccountList はアカウント一覧画面のビューモデルを生成する。
// 全アカウントのコレクション一覧を一括取得して構造キャッシュを上書きし、
// 各アカウントの代表画像を並行に解決する。出力順はアカウント一覧の順序を保つ。
func (c *Controller) EnterAccountList(ctx context.Context) (vm *model.AccountListVM, err error) {
	defer func() { c.record(model.ViewAccountList, err) }()

	accounts, err := c.source.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}

	paths := make([]string, len(accounts))
	for i, a := range accounts {
		paths[i] = transport.AccountCollectionsPath(a.ID)
	}
	lists, err := bulk.FetchAll(ctx, c.coordinator, paths, c.source.CollectionsAt)
	if err != nil {
		return nil, fmt.Errorf("コレクション一覧の一括取得に失敗しました: %w", err)
	}
	for i, a := range accounts {
		c.collections.Put(a.ID, lists[i])
	}

	images, err := bulk.Map(ctx, c.coordinator, accounts, func(ctx context.Context, a model.Account) (string, error) {
		return c.reps.RepresentativeImageFor(ctx, a.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("代表画像の解決に失敗しました: %w", err)
	}

	cards := make([]model.AccountCard, len(accounts))
	for i, a := range accounts {
		cards[i] = model.AccountCard{
			ID:       a.ID,
			Username: c.sanitizer.Sanitize(a.Username),
			Name:     c.sanitizer.Sanitize(a.Name),
			ImageURL: images[i],
		}
	}

	c.logger.Info("アカウント一覧を生成しました",
		slog.Int("account_count", len(cards)),
	)

	return &model.AccountListVM{
		Accounts:    cards,
		Breadcrumbs: []model.Crumb{rootCrumb()},
	}, nil
}

// EnterCollectionList はアカウント配下のコレクション一覧画面のビューモデルを生成する。
// コレクションは構造キャッシュから読む。アカウント一覧を経由せずに呼ばれた場合は
// キャッシュが空のため、エラーではなく空の一覧を返す。
func (c *Controller) EnterCollectionList(ctx context.Context, accountID int) (vm *model.CollectionListVM, err error) {
	defer func() { c.record(model.ViewCollectionList, err) }()

	account, err := c.source.Account(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウント %d の取得に失敗しました: %w", accountID, err)
	}

	collections, ok := c.collections.Get(accountID)
	if !ok {
		c.logger.Warn("コレクションの構造キャッシュがないため空の一覧を返します",
			slog.Int("account_id", accountID),
		)
	}

	sets, err := bulk.Map(ctx, c.coordinator, collections, func(ctx context.Context, col model.Collection) ([]string, error) {
		return c.reps.RepresentativeSetFor(ctx, col.ID, c.setSize)
	})
	if err != nil {
		return nil, fmt.Errorf("コレクションの代表画像の解決に失敗しました: %w", err)
	}

	cards := make([]model.CollectionCard, len(collections))
	for i, col := range collections {
		cards[i] = model.CollectionCard{
			ID:        col.ID,
			Title:     c.sanitizer.Sanitize(col.Title),
			ImageURLs: sets[i],
		}
	}

	accountName := c.sanitizer.Sanitize(account.Name)
	return &model.CollectionListVM{
		AccountID:   account.ID,
		AccountName: accountName,
		Collections: cards,
		Breadcrumbs: []model.Crumb{
			rootCrumb(),
			{Label: accountName, View: model.ViewCollectionList, ID: account.ID},
		},
	}, nil
}

// EnterItemList はコレクション配下のアイテム一覧画面のビューモデルを生成する。
// アイテム一覧はコレクションごとに初回のみ取得してメモし、以降は再取得しない。
// その後、所属コレクションと所有アカウントを順に取得する。
func (c *Controller) EnterItemList(ctx context.Context, collectionID int) (vm *model.ItemListVM, err error) {
	defer func() { c.record(model.ViewItemList, err) }()

	items, err := c.memoizedItems(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクション %d のアイテム取得に失敗しました: %w", collectionID, err)
	}

	collection, err := c.source.Collection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクション %d の取得に失敗しました: %w", collectionID, err)
	}
	account, err := c.source.Account(ctx, collection.AccountID)
	if err != nil {
		return nil, fmt.Errorf("アカウント %d の取得に失敗しました: %w", collection.AccountID, err)
	}

	cards := make([]model.ItemCard, len(items))
	for i, it := range items {
		cards[i] = model.ItemCard{
			ID:           it.ID,
			Title:        c.sanitizer.Sanitize(it.Title),
			ThumbnailURL: it.ThumbnailURL,
		}
	}

	accountName := c.sanitizer.Sanitize(account.Name)
	collectionTitle := c.sanitizer.Sanitize(collection.Title)
	return &model.ItemListVM{
		CollectionID:    collection.ID,
		CollectionTitle: collectionTitle,
		AccountID:       account.ID,
		AccountName:     accountName,
		Items:           cards,
		Breadcrumbs: []model.Crumb{
			rootCrumb(),
			{Label: accountName, View: model.ViewCollectionList, ID: account.ID},
			{Label: collectionTitle, View: model.ViewItemList, ID: collection.ID},
		},
	}, nil
}

// EnterItemDetail はアイテム単体表示のビューモデルを生成する。
// アイテム、所属コレクション、所有アカウントを順に取得する。
func (c *Controller) EnterItemDetail(ctx context.Context, itemID int) (vm *model.ItemDetailVM, err error) {
	defer func() { c.record(model.ViewItemDetail, err) }()

	item, err := c.source.Item(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("アイテム %d の取得に失敗しました: %w", itemID, err)
	}
	collection, err := c.source.Collection(ctx, item.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("コレクション %d の取得に失敗しました: %w", item.CollectionID, err)
	}
	account, err := c.source.Account(ctx, collection.AccountID)
	if err != nil {
		return nil, fmt.Errorf("アカウント %d の取得に失敗しました: %w", collection.AccountID, err)
	}

	accountName := c.sanitizer.Sanitize(account.Name)
	collectionTitle := c.sanitizer.Sanitize(collection.Title)
	return &model.ItemDetailVM{
		ID:               item.ID,
		Title:            c.sanitizer.Sanitize(item.Title),
		FullURL:          item.FullURL,
		CollectionTitle:  collectionTitle,
		AccountName:      accountName,
		BackCollectionID: collection.ID,
		Breadcrumbs: []model.Crumb{
			rootCrumb(),
			{Label: accountName, View: model.ViewCollectionList, ID: account.ID},
			{Label: collectionTitle, View: model.ViewItemList, ID: collection.ID},
		},
	}, nil
}

// Clear は構造キャッシュ、アイテムのメモ、代表画像キャッシュをすべて空にする。
func (c *Controller) Clear() {
	c.collections.Clear()
	c.items.Clear()
	c.reps.Clear()
}

// memoizedItems はコレクションのアイテム一覧をメモから返す。
// 未取得の場合は上流から取得してメモする。同一コレクションへの同時アクセスは
// singleflightにより1回の取得にまとめる。取得失敗はメモしない。
// 共有される取得は最初の呼び出し元のキャンセルを引き継がない。
// 各呼び出し元は自身のctxが終了した時点で待機をやめる。
func (c *Controller) memoizedItems(ctx context.Context, collectionID int) ([]model.Item, error) {
	if items, ok := c.items.Get(collectionID); ok {
		return items, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.itemsFlight.DoChan(strconv.Itoa(collectionID), func() (any, error) {
		if items, ok := c.items.Get(collectionID); ok {
			return items, nil
		}
		items, err := c.source.CollectionItems(flightCtx, collectionID)
		if err != nil {
			return nil, err
		}
		c.items.Put(collectionID, items)
		return items, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Item), nil
	}
}

func (c *Controller) record(view model.View, err error) {
	if c.recorder != nil {
		c.recorder.RecordNavigation(string(view), err == nil)
	}
}

func rootCrumb() model.Crumb {
	return model.Crumb{Label: "Users", View: model.ViewAccountList}
}

type passthrough struct{}

func (passthrough) Sanitize(raw string) string { return raw }
