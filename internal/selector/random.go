package selector

import "math/rand/v2"

// RandomSource は代表画像の選択に使う乱数源。
// テスト時に決定的な実装に差し替えて選択結果を検証できる。
type RandomSource interface {
	// IntN は[0, n)の一様乱数を返す。nは正でなければならない。
	IntN(n int) int
	// Shuffle はn要素をswapで並べ替え、ランダムな順列を作る。
	Shuffle(n int, swap func(i, j int))
}

// globalRandom はmath/rand/v2のグローバル乱数源を使うRandomSource。
// 自動でシードされ、並行利用に対して安全。
type globalRandom struct{}

// NewRandomSource はデフォルトのRandomSourceを返す。
func NewRandomSource() RandomSource {
	return globalRandom{}
}

func (globalRandom) IntN(n int) int {
	return rand.IntN(n)
}

func (globalRandom) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}
