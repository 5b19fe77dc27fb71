package transporttest

import (
	"github.com/hitoshi/albumview/internal/model"
	"github.com/hitoshi/albumview/internal/transport"
)

// Tree はアカウント→コレクション→アイテムの3階層のテストデータ。
type Tree struct {
	Accounts    []model.Account
	Collections []model.Collection
	Items       []model.Item
}

// Seed はTreeの内容を上流APIの6種類のパスとして登録する。
// 子を持たないアカウント/コレクションには空配列を登録する。
func (f *Fake) Seed(tree Tree) {
	accounts := tree.Accounts
	if accounts == nil {
		accounts = []model.Account{}
	}
	f.Set(transport.AccountsPath(), accounts)

	collectionsByAccount := make(map[int][]model.Collection)
	for _, a := range tree.Accounts {
		f.Set(transport.AccountPath(a.ID), a)
		collectionsByAccount[a.ID] = []model.Collection{}
	}
	for _, c := range tree.Collections {
		f.Set(transport.CollectionPath(c.ID), c)
		collectionsByAccount[c.AccountID] = append(collectionsByAccount[c.AccountID], c)
	}
	for accountID, cs := range collectionsByAccount {
		f.Set(transport.AccountCollectionsPath(accountID), cs)
	}

	itemsByCollection := make(map[int][]model.Item)
	for _, c := range tree.Collections {
		itemsByCollection[c.ID] = []model.Item{}
	}
	for _, it := range tree.Items {
		f.Set(transport.ItemPath(it.ID), it)
		itemsByCollection[it.CollectionID] = append(itemsByCollection[it.CollectionID], it)
	}
	for collectionID, items := range itemsByCollection {
		f.Set(transport.CollectionItemsPath(collectionID), items)
	}
}
