package model

// View はナビゲーションの画面種別を表す。
type View string

const (
	// ViewAccountList はアカウント一覧画面。
	ViewAccountList View = "accounts"
	// ViewCollectionList はアカウント配下のコレクション一覧画面。
	ViewCollectionList View = "collections"
	// ViewItemList はコレクション配下のアイテム一覧画面。
	ViewItemList View = "items"
	// ViewItemDetail はアイテム単体の表示画面。
	ViewItemDetail View = "item"
)

// Crumb はパンくずリストの1要素。
// 最後の要素は現在の画面を表し、IDが0の場合はアカウント一覧を指す。
type Crumb struct {
	Label string `json:"label"`
	View  View   `json:"view"`
	ID    int    `json:"id,omitempty"`
}

// AccountCard はアカウント一覧の1要素。
type AccountCard struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// AccountListVM はアカウント一覧画面のビューモデル。
type AccountListVM struct {
	Accounts    []AccountCard `json:"accounts"`
	Breadcrumbs []Crumb       `json:"breadcrumbs"`
}

// CollectionCard はコレクション一覧の1要素。ImageURLsは最大4件。
type CollectionCard struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	ImageURLs []string `json:"image_urls"`
}

// CollectionListVM はコレクション一覧画面のビューモデル。
type CollectionListVM struct {
	AccountID   int              `json:"account_id"`
	AccountName string           `json:"account_name"`
	Collections []CollectionCard `json:"collections"`
	Breadcrumbs []Crumb          `json:"breadcrumbs"`
}

// ItemCard はアイテム一覧の1要素。
type ItemCard struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// ItemListVM はアイテム一覧画面のビューモデル。
type ItemListVM struct {
	CollectionID    int        `json:"collection_id"`
	CollectionTitle string     `json:"collection_title"`
	AccountID       int        `json:"account_id"`
	AccountName     string     `json:"account_name"`
	Items           []ItemCard `json:"items"`
	Breadcrumbs     []Crumb    `json:"breadcrumbs"`
}

// ItemDetailVM はアイテム単体表示画面のビューモデル。
// BackCollectionIDは閉じる操作で戻る先のコレクションを指す。
// Breadcrumbsは直前のアイテム一覧と同じ3階層のパンくずリスト。
type ItemDetailVM struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	FullURL          string  `json:"full_url"`
	CollectionTitle  string  `json:"collection_title"`
	AccountName      string  `json:"account_name"`
	BackCollectionID int     `json:"back_collection_id"`
	Breadcrumbs      []Crumb `json:"breadcrumbs"`
}
