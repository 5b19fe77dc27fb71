package transport

import (
	"context"
	"fmt"

	"github.com/hitoshi/albumview/internal/model"
)

// AccountsPath はアカウント一覧のパスを返す。
func AccountsPath() string { return "/users" }

// AccountPath はアカウント単体のパスを返す。
func AccountPath(id int) string { return fmt.Sprintf("/users/%d", id) }

// AccountCollectionsPath はアカウント配下のコレクション一覧のパスを返す。
func AccountCollectionsPath(accountID int) string { return fmt.Sprintf("/users/%d/albums", accountID) }

// CollectionPath はコレクション単体のパスを返す。
func CollectionPath(id int) string { return fmt.Sprintf("/albums/%d", id) }

// CollectionItemsPath はコレクション配下のアイテム一覧のパスを返す。
func CollectionItemsPath(collectionID int) string { return fmt.Sprintf("/albums/%d/photos", collectionID) }

// ItemPath はアイテム単体のパスを返す。
func ItemPath(id int) string { return fmt.Sprintf("/photos/%d", id) }

// Resources はGetterの上に型付きの取得操作を提供する。
type Resources struct {
	getter Getter
}

// NewResources はResourcesの新しいインスタンスを生成する。
func NewResources(getter Getter) *Resources {
	return &Resources{getter: getter}
}

// Accounts は全アカウントを取得する。
func (r *Resources) Accounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := r.getter.Get(ctx, AccountsPath(), &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Account はアカウント1件を取得する。
func (r *Resources) Account(ctx context.Context, id int) (*model.Account, error) {
	var account model.Account
	if err := r.getter.Get(ctx, AccountPath(id), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// AccountCollections はアカウント配下のコレクションを取得する。
func (r *Resources) AccountCollections(ctx context.Context, accountID int) ([]model.Collection, error) {
	return r.CollectionsAt(ctx, AccountCollectionsPath(accountID))
}

// CollectionsAt は任意のパスからコレクション一覧を取得する。
// 一括取得でパス単位に呼び出すために使用する。
func (r *Resources) CollectionsAt(ctx context.Context, path string) ([]model.Collection, error) {
	var collections []model.Collection
	if err := r.getter.Get(ctx, path, &collections); err != nil {
		return nil, err
	}
	return collections, nil
}

// Collection はコレクション1件を取得する。
func (r *Resources) Collection(ctx context.Context, id int) (*model.Collection, error) {
	var collection model.Collection
	if err := r.getter.Get(ctx, CollectionPath(id), &collection); err != nil {
		return nil, err
	}
	return &collection, nil
}

// CollectionItems はコレクション配下のアイテムを取得する。
func (r *Resources) CollectionItems(ctx context.Context, collectionID int) ([]model.Item, error) {
	var items []model.Item
	if err := r.getter.Get(ctx, CollectionItemsPath(collectionID), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Item はアイテム1件を取得する。
func (r *Resources) Item(ctx context.Context, id int) (*model.Item, error) {
	var item model.Item
	if err := r.getter.Get(ctx, ItemPath(id), &item); err != nil {
		return nil, err
	}
	return &item, nil
}
