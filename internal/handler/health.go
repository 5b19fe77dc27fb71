package handler

import "net/http"

// Health は死活監視用のエンドポイント。上流APIには問い合わせない。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
