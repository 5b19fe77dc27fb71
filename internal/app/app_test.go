package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/albumview/internal/config"
	"github.com/hitoshi/albumview/internal/model"
)

// newUpstream はjsonplaceholder互換の上流APIを起動する。
// ユーザー2人、ユーザー1にアルバム1件（写真2枚）、ユーザー2はアルバムなし。
func newUpstream(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	mux := http.NewServeMux()
	reply := func(pattern string, body string) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, body)
		})
	}
	reply("GET /users", `[{"id":1,"name":"Leanne Graham","username":"Bret"},{"id":2,"name":"Ervin Howell","username":"Antonette"}]`)
	reply("GET /users/1", `{"id":1,"name":"Leanne Graham","username":"Bret"}`)
	reply("GET /users/1/albums", `[{"id":1,"userId":1,"title":"quidem <b>molestiae</b>"}]`)
	reply("GET /users/2", `{"id":2,"name":"Ervin Howell","username":"Antonette"}`)
	reply("GET /users/2/albums", `[]`)
	reply("GET /albums/1", `{"id":1,"userId":1,"title":"quidem molestiae"}`)
	reply("GET /albums/1/photos", `[
		{"id":1,"albumId":1,"title":"accusamus","url":"https://img.example/600/1","thumbnailUrl":"https://img.example/150/1"},
		{"id":2,"albumId":1,"title":"reprehenderit","url":"https://img.example/600/2","thumbnailUrl":"https://img.example/150/2"}
	]`)
	reply("GET /photos/2", `{"id":2,"albumId":1,"title":"reprehenderit","url":"https://img.example/600/2","thumbnailUrl":"https://img.example/150/2"}`)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func setTestEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("ALBUMVIEW_CONFIG", "")
	t.Setenv("API_BASE_URL", baseURL)
	t.Setenv("BLOCK_PRIVATE_UPSTREAM", "false")
	t.Setenv("RATE_LIMIT_GENERAL", "0")
	t.Setenv("LOG_LEVEL", "debug")
}

func TestInit_ConfiguresJSONLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	setTestEnv(t, "https://jsonplaceholder.typicode.com")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.APIBaseURL != "https://jsonplaceholder.typicode.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}

	slog.Default().Debug("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_InvalidBaseURL_ReturnsError(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	setTestEnv(t, "::not a url")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for invalid API_BASE_URL")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestBuild_RejectsPrivateUpstreamWhenBlocked(t *testing.T) {
	cfg := config.Default()
	cfg.APIBaseURL = "http://127.0.0.1:9000"
	cfg.BlockPrivateUpstream = true

	if _, err := Build(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for private upstream")
	}
}

func TestServer_EndToEnd(t *testing.T) {
	upstream, calls := newUpstream(t)

	cfg := config.Default()
	cfg.APIBaseURL = upstream.URL
	cfg.BlockPrivateUpstream = false
	cfg.RateLimitGeneral = 0

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	components, err := Build(cfg, log)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	server, stop := NewServer(cfg, components, log)
	defer stop()

	srv := httptest.NewServer(server.Handler)
	defer srv.Close()

	get := func(path string, out any) int {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		if out != nil && resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				t.Fatalf("GET %s: decode: %v", path, err)
			}
		}
		return resp.StatusCode
	}

	var accounts model.AccountListVM
	if code := get("/api/accounts", &accounts); code != http.StatusOK {
		t.Fatalf("/api/accounts status = %d", code)
	}
	if len(accounts.Accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts.Accounts))
	}
	if !strings.HasPrefix(accounts.Accounts[0].ImageURL, "https://img.example/150/") {
		t.Errorf("account 1 image = %q, want a thumbnail URL", accounts.Accounts[0].ImageURL)
	}
	if accounts.Accounts[1].ImageURL != cfg.PlaceholderURL {
		t.Errorf("account 2 image = %q, want placeholder", accounts.Accounts[1].ImageURL)
	}

	var collections model.CollectionListVM
	if code := get("/api/accounts/1/collections", &collections); code != http.StatusOK {
		t.Fatalf("collections status = %d", code)
	}
	if len(collections.Collections) != 1 {
		t.Fatalf("collections = %d, want 1", len(collections.Collections))
	}
	if strings.Contains(collections.Collections[0].Title, "<b>") {
		t.Errorf("title should be sanitized, got %q", collections.Collections[0].Title)
	}
	if len(collections.Collections[0].ImageURLs) != 2 {
		t.Errorf("image urls = %d, want 2", len(collections.Collections[0].ImageURLs))
	}

	before := calls.Load()
	var items model.ItemListVM
	if code := get("/api/collections/1/items", &items); code != http.StatusOK {
		t.Fatalf("items status = %d", code)
	}
	if len(items.Items) != 2 || items.AccountName != "Leanne Graham" {
		t.Errorf("items = %+v", items)
	}
	if got := calls.Load() - before; got != 3 {
		t.Errorf("upstream calls for first item list visit = %d, want 3 (photos, album, user)", got)
	}

	// 2回目はアイテム一覧をメモから返し、アルバムとユーザーだけを取得する
	before = calls.Load()
	get("/api/collections/1/items", nil)
	if got := calls.Load() - before; got != 2 {
		t.Errorf("upstream calls for second item list visit = %d, want 2", got)
	}

	var detail model.ItemDetailVM
	if code := get("/api/items/2", &detail); code != http.StatusOK {
		t.Fatalf("detail status = %d", code)
	}
	if detail.BackCollectionID != 1 || detail.FullURL != "https://img.example/600/2" {
		t.Errorf("detail = %+v", detail)
	}

	if code := get("/api/items/999", nil); code != http.StatusNotFound {
		t.Errorf("missing item status = %d, want %d", code, http.StatusNotFound)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, name := range []string{"albumview_upstream_requests_total", "albumview_navigations_total", "albumview_cache_hits_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("/metrics should expose %s", name)
		}
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	cfg.APIBaseURL = "http://127.0.0.1:1"
	cfg.BlockPrivateUpstream = false

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	components, err := Build(cfg, log)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	server, stop := NewServer(cfg, components, log)
	defer stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, ln, log) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr().String())
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestRunWarm_ReportsUpstreamFailure(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()
	setTestEnv(t, upstream.URL)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"warm"}); err == nil {
		t.Fatal("expected warm to fail when upstream is down")
	}
}

func TestRunWarm_Succeeds(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	upstream, _ := newUpstream(t)
	setTestEnv(t, upstream.URL)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"warm"}); err != nil {
		t.Fatalf("Run(warm) error = %v", err)
	}
	if !strings.Contains(buf.String(), "warm completed") {
		t.Errorf("expected completion log, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"collection_list_count":2`) {
		t.Errorf("expected both accounts warmed, got %s", buf.String())
	}
}

func TestRunHealthcheck_Failure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if err := runHealthcheck(fmt.Sprint(port)); err == nil {
		t.Error("expected health check to fail when nothing listens")
	}
}
