package browse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/albumview/internal/model"
)

// ErrSuperseded は新しい遷移要求により結果が破棄されたことを示す。
var ErrSuperseded = errors.New("navigation superseded by a newer request")

// ErrNoBack は戻り先のない画面（アカウント一覧）で戻る操作が行われたことを示す。
var ErrNoBack = errors.New("no back transition from the current view")

// Target は遷移先の画面とID。アカウント一覧ではIDを使わない。
type Target struct {
	View model.View `json:"view"`
	ID   int        `json:"id,omitempty"`
}

// Validate は遷移先が有効かを検証する。
func (t Target) Validate() error {
	switch t.View {
	case model.ViewAccountList:
		return nil
	case model.ViewCollectionList, model.ViewItemList, model.ViewItemDetail:
		if t.ID <= 0 {
			return model.NewInvalidIDError(itoa(t.ID))
		}
		return nil
	default:
		return model.NewUnknownViewError(string(t.View))
	}
}

// Entries は各画面のエントリー操作。Controllerが実装する。
type Entries interface {
	EnterAccountList(ctx context.Context) (*model.AccountListVM, error)
	EnterCollectionList(ctx context.Context, accountID int) (*model.CollectionListVM, error)
	EnterItemList(ctx context.Context, collectionID int) (*model.ItemListVM, error)
	EnterItemDetail(ctx context.Context, itemID int) (*model.ItemDetailVM, error)
}

// Renderer は外部の表示層。Navigatorは最新の遷移の結果だけをRendererへ渡す。
// generationは遷移ごとに単調増加する番号。
type Renderer interface {
	RenderAccountList(generation uint64, vm *model.AccountListVM) error
	RenderCollectionList(generation uint64, vm *model.CollectionListVM) error
	RenderItemList(generation uint64, vm *model.ItemListVM) error
	RenderItemDetail(generation uint64, vm *model.ItemDetailVM) error
	RenderError(generation uint64, target Target, err error) error
}

// Navigator は画面遷移の状態機械。
//
//	AccountList → CollectionList(accountID) → ItemList(collectionID) → ItemDetail(itemID)
//
// 戻る操作は ItemDetail → ItemList、ItemList → CollectionList、CollectionList → AccountList。
// 実行中の遷移はキャンセルしない。遷移要求ごとに世代番号を振り、
// 結果の配送時点でより新しい要求が存在する場合はその結果を破棄する。
type Navigator struct {
	entries  Entries
	renderer Renderer
	logger   *slog.Logger

	generation atomic.Uint64

	mu      sync.Mutex
	current Target
	back    Target
	hasBack bool
}

// NewNavigator はNavigatorの新しいインスタンスを生成する。
// 初期状態はアカウント一覧（未描画）。
func NewNavigator(entries Entries, renderer Renderer, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		entries:  entries,
		renderer: renderer,
		logger:   logger,
		current:  Target{View: model.ViewAccountList},
	}
}

// Generation は最後に発行した世代番号を返す。
func (n *Navigator) Generation() uint64 {
	return n.generation.Load()
}

// Current は最後に描画に成功した画面を返す。
func (n *Navigator) Current() Target {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// BackTarget は現在の画面の戻り先を返す。アカウント一覧など戻り先がない場合はfalseを返す。
func (n *Navigator) BackTarget() (Target, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.back, n.hasBack
}

// Navigate はtargetへ遷移する。データ取得の完了を待ち、最新の要求であれば
// ビューモデルまたはエラーをRendererへ渡す。より新しい要求に追い越された場合は
// 何も描画せずErrSupersededを返す。
func (n *Navigator) Navigate(ctx context.Context, target Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	gen := n.generation.Add(1)
	deliver, back, hasBack, err := n.load(ctx, target)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.generation.Load() != gen {
		n.logger.Debug("新しい遷移要求があるため結果を破棄しました",
			slog.String("view", string(target.View)),
			slog.Int("id", target.ID),
			slog.Uint64("generation", gen),
		)
		return ErrSuperseded
	}

	if err != nil {
		if rerr := n.renderer.RenderError(gen, target, err); rerr != nil {
			n.logger.Error("エラー画面の描画に失敗しました",
				slog.String("error", rerr.Error()),
			)
		}
		return err
	}

	if err := deliver(gen); err != nil {
		return err
	}
	n.current = target
	n.back = back
	n.hasBack = hasBack
	return nil
}

// Back は現在の画面の戻り先へ遷移する。
func (n *Navigator) Back(ctx context.Context) error {
	n.mu.Lock()
	back, ok := n.back, n.hasBack
	n.mu.Unlock()

	if !ok {
		return ErrNoBack
	}
	return n.Navigate(ctx, back)
}

// load はエントリー操作を実行し、描画関数と戻り先を返す。
func (n *Navigator) load(ctx context.Context, target Target) (deliver func(gen uint64) error, back Target, hasBack bool, err error) {
	switch target.View {
	case model.ViewAccountList:
		vm, err := n.entries.EnterAccountList(ctx)
		if err != nil {
			return nil, Target{}, false, err
		}
		return func(gen uint64) error { return n.renderer.RenderAccountList(gen, vm) }, Target{}, false, nil

	case model.ViewCollectionList:
		vm, err := n.entries.EnterCollectionList(ctx, target.ID)
		if err != nil {
			return nil, Target{}, false, err
		}
		return func(gen uint64) error { return n.renderer.RenderCollectionList(gen, vm) },
			Target{View: model.ViewAccountList}, true, nil

	case model.ViewItemList:
		vm, err := n.entries.EnterItemList(ctx, target.ID)
		if err != nil {
			return nil, Target{}, false, err
		}
		return func(gen uint64) error { return n.renderer.RenderItemList(gen, vm) },
			Target{View: model.ViewCollectionList, ID: vm.AccountID}, true, nil

	case model.ViewItemDetail:
		vm, err := n.entries.EnterItemDetail(ctx, target.ID)
		if err != nil {
			return nil, Target{}, false, err
		}
		return func(gen uint64) error { return n.renderer.RenderItemDetail(gen, vm) },
			Target{View: model.ViewItemList, ID: vm.BackCollectionID}, true, nil
	}
	return nil, Target{}, false, model.NewUnknownViewError(string(target.View))
}
