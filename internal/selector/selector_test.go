package selector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/albumview/internal/cache"
	"github.com/hitoshi/albumview/internal/model"
	"github.com/hitoshi/albumview/internal/transport"
	"github.com/hitoshi/albumview/internal/transport/transporttest"
)

// scriptedRandom は決定的なRandomSource。
// IntNはintsを順に返し（範囲外は剰余）、Shuffleは配列を逆順にする。
type scriptedRandom struct {
	mu   sync.Mutex
	ints []int
	next int
}

func (r *scriptedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[r.next%len(r.ints)]
	r.next++
	return v % n
}

func (r *scriptedRandom) Shuffle(n int, swap func(i, j int)) {
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func items(collectionID, firstID, n int) []model.Item {
	out := make([]model.Item, n)
	for i := 0; i < n; i++ {
		id := firstID + i
		out[i] = model.Item{
			ID:           id,
			CollectionID: collectionID,
			Title:        fmt.Sprintf("item %d", id),
			FullURL:      fmt.Sprintf("https://img.example/600/%d", id),
			ThumbnailURL: fmt.Sprintf("https://img.example/150/%d", id),
		}
	}
	return out
}

type fixture struct {
	fake     *transporttest.Fake
	selector *Selector
	now      time.Time
}

func newFixture(t *testing.T, tree transporttest.Tree, random RandomSource) *fixture {
	t.Helper()
	f := &fixture{fake: transporttest.New(), now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.fake.Seed(tree)
	clock := func() time.Time { return f.now }
	f.selector = NewSelector(
		transport.NewResources(f.fake),
		random,
		cache.NewExpiring[int, string](time.Hour, cache.WithClock(clock)),
		cache.NewExpiring[int, []string](time.Hour, cache.WithClock(clock)),
		newTestLogger(),
		DefaultConfig(),
	)
	return f
}

func thumbnailSet(its []model.Item) map[string]bool {
	set := make(map[string]bool, len(its))
	for _, it := range its {
		set[it.ThumbnailURL] = true
	}
	return set
}

func TestRepresentativeSetFor_TenItems_ReturnsFourDistinctFromCollection(t *testing.T) {
	its := items(1, 1, 10)
	f := newFixture(t, transporttest.Tree{
		Collections: []model.Collection{{ID: 1, AccountID: 1, Title: "c1"}},
		Items:       its,
	}, nil)

	got, err := f.selector.RepresentativeSetFor(context.Background(), 1, 4)
	if err != nil {
		t.Fatalf("RepresentativeSetFor がエラーを返した: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	valid := thumbnailSet(its)
	seen := map[string]bool{}
	for _, u := range got {
		if !valid[u] {
			t.Errorf("%q はコレクションのサムネイルではない", u)
		}
		if seen[u] {
			t.Errorf("%q が重複している", u)
		}
		seen[u] = true
	}
}

func TestRepresentativeSetFor_TwoItems_ReturnsBoth(t *testing.T) {
	its := items(1, 1, 2)
	f := newFixture(t, transporttest.Tree{
		Collections: []model.Collection{{ID: 1, AccountID: 1}},
		Items:       its,
	}, nil)

	got, err := f.selector.RepresentativeSetFor(context.Background(), 1, 4)
	if err != nil {
		t.Fatalf("RepresentativeSetFor がエラーを返した: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	valid := thumbnailSet(its)
	if got[0] == got[1] || !valid[got[0]] || !valid[got[1]] {
		t.Errorf("got = %v, want both thumbnails of the collection", got)
	}
}

func TestRepresentativeSetFor_DeterministicSource_ExactSelection(t *testing.T) {
	its := items(1, 1, 6)
	f := newFixture(t, transporttest.Tree{
		Collections: []model.Collection{{ID: 1, AccountID: 1}},
		Items:       its,
	}, &scriptedRandom{})

	got, err := f.selector.RepresentativeSetFor(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("RepresentativeSetFor がエラーを返した: %v", err)
	}

	want := []string{its[5].ThumbnailURL, its[4].ThumbnailURL, its[3].ThumbnailURL, its[2].ThumbnailURL}
	if len(got) != len(want) {
		t.Fatalf("got = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRepresentativeSetFor_EmptyCollection_ReturnsEmptyAndCaches(t *testing.T) {
	f := newFixture(t, transporttest.Tree{
		Collections: []model.Collection{{ID: 9, AccountID: 1}},
	}, nil)

	for i := 0; i < 2; i++ {
		got, err := f.selector.RepresentativeSetFor(context.Background(), 9, 4)
		if err != nil {
			t.Fatalf("RepresentativeSetFor がエラーを返した: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("got = %#v, want empty non-nil slice", got)
		}
	}
	if calls := f.fake.Calls(transport.CollectionItemsPath(9)); calls != 1 {
		t.Errorf("アイテム取得回数 = %d, want 1", calls)
	}
}

func TestRepresentativeSetFor_CachedUntilTTL(t *testing.T) {
	f := newFixture(t, transporttest.Tree{
		Collections: []model.Collection{{ID: 1, AccountID: 1}},
		Items:       items(1, 1, 5),
	}, nil)
	ctx := context.Background()
	path := transport.CollectionItemsPath(1)

	first, _ := f.selector.RepresentativeSetFor(ctx, 1, 4)
	f.now = f.now.Add(59 * time.Minute)
	second, _ := f.selector.RepresentativeSetFor(ctx, 1, 4)

	if f.fake.Calls(path) != 1 {
		t.Errorf("TTL内の取得回数 = %d, want 1", f.fake.Calls(path))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("TTL内はキャッシュ値を返さなければならない: %v vs %v", first, second)
			break
		}
	}

	f.now = f.now.Add(time.Minute)
	if _, err := f.selector.RepresentativeSetFor(ctx, 1, 4); err != nil {
		t.Fatalf("RepresentativeSetFor がエラーを返した: %v", err)
	}
	if f.fake.Calls(path) != 2 {
		t.Errorf("TTL経過後の取得回数 = %d, want 2", f.fake.Calls(path))
	}
}

func TestRepresentativeSetFor_LargerCountAfterSmallerCount(t *testing.T) {
	its := items(1, 1, 10)
	f := newFixture(t, transporttest.Tree{
		Collections: []model.Collection{{ID: 1, AccountID: 1}},
		Items:       its,
	}, nil)
	ctx := context.Background()

	small, err := f.selector.RepresentativeSetFor(ctx, 1, 2)
	if err != nil {
		t.Fatalf("RepresentativeSetFor がエラーを返した: %v", err)
	}
	if len(small) != 2 {
		t.Fatalf("count=2: len = %d, want 2", len(small))
	}

	large, err := f.selector.RepresentativeSetFor(ctx, 1, 4)
	if err != nil {
		t.Fatalf("RepresentativeSetFor がエラーを返した: %v", err)
	}
	if len(large) != 4 {
		t.Fatalf("count=4: len = %d, want 4", len(large))
	}
	seen := map[string]bool{}
	for _, u := range large {
		if seen[u] {
			t.Errorf("%q が重複している", u)
		}
		seen[u] = true
	}
	// 同じキャッシュ済み順列から切り出すため、先頭は一致する
	if large[0] != small[0] || large[1] != small[1] {
		t.Errorf("large = %v, want prefix %v", large, small)
	}
	if calls := f.fake.Calls(transport.CollectionItemsPath(1)); calls != 1 {
		t.Errorf("アイテム取得回数 = %d, want 1", calls)
	}
}

func TestRepresentativeSetFor_ReturnedSliceIsACopy(t *testing.T) {
	f := newFixture(t, transporttest.Tree{
		Collections: []model.Collection{{ID: 1, AccountID: 1}},
		Items:       items(1, 1, 3),
	}, &scriptedRandom{})
	ctx := context.Background()

	first, _ := f.selector.RepresentativeSetFor(ctx, 1, 4)
	first[0] = "mutated"

	second, _ := f.selector.RepresentativeSetFor(ctx, 1, 4)
	if second[0] == "mutated" {
		t.Error("呼び出し元の変更がキャッシュに影響してはならない")
	}
}

func TestRepresentativeImageFor_NoCollections_ReturnsPlaceholder(t *testing.T) {
	f := newFixture(t, transporttest.Tree{
		Accounts: []model.Account{{ID: 1, Name: "empty"}},
	}, nil)

	got, err := f.selector.RepresentativeImageFor(context.Background(), 1)
	if err != nil {
		t.Fatalf("RepresentativeImageFor がエラーを返した: %v", err)
	}
	if got != DefaultPlaceholderURL {
		t.Errorf("got = %q, want %q", got, DefaultPlaceholderURL)
	}

	// 代替画像はキャッシュされないため、再度上流へ問い合わせる
	f.selector.RepresentativeImageFor(context.Background(), 1)
	if calls := f.fake.Calls(transport.AccountCollectionsPath(1)); calls != 2 {
		t.Errorf("コレクション取得回数 = %d, want 2", calls)
	}
}

func TestRepresentativeImageFor_MixedCollections_NeverFails(t *testing.T) {
	c1Items := items(1, 1, 3)
	f := newFixture(t, transporttest.Tree{
		Accounts: []model.Account{{ID: 1}},
		Collections: []model.Collection{
			{ID: 1, AccountID: 1, Title: "C1"},
			{ID: 2, AccountID: 1, Title: "C2"},
		},
		Items: c1Items,
	}, nil)
	valid := thumbnailSet(c1Items)

	var gotThumbnail bool
	for i := 0; i < 200; i++ {
		f.selector.Clear()
		got, err := f.selector.RepresentativeImageFor(context.Background(), 1)
		if err != nil {
			t.Fatalf("RepresentativeImageFor がエラーを返した: %v", err)
		}
		switch {
		case valid[got]:
			gotThumbnail = true
		case got == DefaultPlaceholderURL:
		default:
			t.Fatalf("got = %q, want a C1 thumbnail or the placeholder", got)
		}
	}
	if !gotThumbnail {
		t.Error("200回の試行でC1のサムネイルが一度も選ばれなかった")
	}
}

func TestRepresentativeImageFor_DeterministicSource(t *testing.T) {
	c1Items := items(1, 1, 3)
	c2Items := items(2, 10, 4)
	f := newFixture(t, transporttest.Tree{
		Accounts: []model.Account{{ID: 1}},
		Collections: []model.Collection{
			{ID: 1, AccountID: 1},
			{ID: 2, AccountID: 1},
		},
		Items: append(c1Items, c2Items...),
	}, &scriptedRandom{ints: []int{1, 2}})

	got, err := f.selector.RepresentativeImageFor(context.Background(), 1)
	if err != nil {
		t.Fatalf("RepresentativeImageFor がエラーを返した: %v", err)
	}
	if got != c2Items[2].ThumbnailURL {
		t.Errorf("got = %q, want %q", got, c2Items[2].ThumbnailURL)
	}
}

func TestRepresentativeImageFor_CachedWithinTTL(t *testing.T) {
	f := newFixture(t, transporttest.Tree{
		Accounts:    []model.Account{{ID: 1}},
		Collections: []model.Collection{{ID: 1, AccountID: 1}},
		Items:       items(1, 1, 3),
	}, nil)
	ctx := context.Background()

	first, _ := f.selector.RepresentativeImageFor(ctx, 1)
	second, _ := f.selector.RepresentativeImageFor(ctx, 1)

	if first != second {
		t.Errorf("TTL内は同じ画像を返さなければならない: %q vs %q", first, second)
	}
	if f.fake.TotalCalls() != 2 {
		t.Errorf("上流呼び出し回数 = %d, want 2", f.fake.TotalCalls())
	}

	f.now = f.now.Add(time.Hour)
	f.selector.RepresentativeImageFor(ctx, 1)
	if f.fake.TotalCalls() != 4 {
		t.Errorf("TTL経過後の上流呼び出し回数 = %d, want 4", f.fake.TotalCalls())
	}
}

func TestRepresentativeImageFor_TransportErrorPropagates(t *testing.T) {
	f := newFixture(t, transporttest.Tree{
		Accounts:    []model.Account{{ID: 1}},
		Collections: []model.Collection{{ID: 1, AccountID: 1}},
	}, nil)
	f.fake.Fail(transport.CollectionItemsPath(1), 503)

	_, err := f.selector.RepresentativeImageFor(context.Background(), 1)

	var te *model.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *model.TransportError", err)
	}
	if te.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", te.StatusCode)
	}
}

func TestNewSelector_AppliesDefaults(t *testing.T) {
	s := NewSelector(nil, nil,
		cache.NewExpiring[int, string](time.Hour),
		cache.NewExpiring[int, []string](time.Hour),
		newTestLogger(), Config{})

	if s.PlaceholderURL() != DefaultPlaceholderURL {
		t.Errorf("PlaceholderURL = %q, want %q", s.PlaceholderURL(), DefaultPlaceholderURL)
	}
	if s.config.SetSize != DefaultSetSize {
		t.Errorf("SetSize = %d, want %d", s.config.SetSize, DefaultSetSize)
	}
	if s.random == nil {
		t.Error("random はデフォルトの乱数源でなければならない")
	}
}
