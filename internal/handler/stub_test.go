package handler

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/hitoshi/albumview/internal/model"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// stubEntries はbrowse.Entriesのモック実装。未設定の操作は固定のビューモデルを返す。
type stubEntries struct {
	accountsFn    func(ctx context.Context) (*model.AccountListVM, error)
	collectionsFn func(ctx context.Context, accountID int) (*model.CollectionListVM, error)
	itemsFn       func(ctx context.Context, collectionID int) (*model.ItemListVM, error)
	itemFn        func(ctx context.Context, itemID int) (*model.ItemDetailVM, error)
}

func (s *stubEntries) EnterAccountList(ctx context.Context) (*model.AccountListVM, error) {
	if s.accountsFn != nil {
		return s.accountsFn(ctx)
	}
	return &model.AccountListVM{
		Accounts: []model.AccountCard{
			{ID: 1, Username: "Bret", Name: "Leanne Graham", ImageURL: "https://img.example/150/1"},
		},
		Breadcrumbs: []model.Crumb{{Label: "Users", View: model.ViewAccountList}},
	}, nil
}

func (s *stubEntries) EnterCollectionList(ctx context.Context, accountID int) (*model.CollectionListVM, error) {
	if s.collectionsFn != nil {
		return s.collectionsFn(ctx, accountID)
	}
	return &model.CollectionListVM{
		AccountID:   accountID,
		AccountName: "Leanne Graham",
		Collections: []model.CollectionCard{{ID: 11, Title: "quidem molestiae", ImageURLs: []string{}}},
	}, nil
}

func (s *stubEntries) EnterItemList(ctx context.Context, collectionID int) (*model.ItemListVM, error) {
	if s.itemsFn != nil {
		return s.itemsFn(ctx, collectionID)
	}
	return &model.ItemListVM{
		CollectionID:    collectionID,
		CollectionTitle: "quidem molestiae",
		AccountID:       1,
		AccountName:     "Leanne Graham",
		Items:           []model.ItemCard{},
	}, nil
}

func (s *stubEntries) EnterItemDetail(ctx context.Context, itemID int) (*model.ItemDetailVM, error) {
	if s.itemFn != nil {
		return s.itemFn(ctx, itemID)
	}
	return &model.ItemDetailVM{
		ID:               itemID,
		Title:            "photo",
		FullURL:          "https://img.example/600/1",
		CollectionTitle:  "quidem molestiae",
		AccountName:      "Leanne Graham",
		BackCollectionID: 11,
	}, nil
}
