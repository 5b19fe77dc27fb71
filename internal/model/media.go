// Package model はドメインモデルを定義する。
package model

// Account はコレクションを所有するアカウント（上流APIのuser）を表す。
type Account struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Collection はアカウントが所有するコレクション（上流APIのalbum）を表す。
type Collection struct {
	ID        int    `json:"id"`
	AccountID int    `json:"userId"`
	Title     string `json:"title"`
}

// Item はコレクションに含まれるアイテム（上流APIのphoto）を表す。
type Item struct {
	ID           int    `json:"id"`
	CollectionID int    `json:"albumId"`
	Title        string `json:"title"`
	FullURL      string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}
