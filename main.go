package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/JesusBorbon/chat-seguro/internal/handlers"
	"github.com/JesusBorbon/chat-seguro/internal/history"
	"github.com/JesusBorbon/chat-seguro/internal/middleware"
	"github.com/JesusBorbon/chat-seguro/internal/store"
)

func main() {
	// Load .env if present (does not override existing env vars).
	_ = godotenv.Load()

	port := getEnv("PORT", "3000")
	dataDir := getEnv("DATA_DIR", "./data")
	mode := handlers.ParseMode(getEnv("CHAT_MODE", "secret"))

	// Refuse to start a gated chat without a shared secret.
	chatKey := os.Getenv("CHAT_KEY")
	if mode != handlers.ModeOpen && chatKey == "" {
		log.Fatal("FATAL: CHAT_KEY is not set. Set it in your environment or .env file, " +
			"or run with CHAT_MODE=open to disable the access gate.")
	}

	if err := os.MkdirAll(filepath.Join(dataDir, "uploads"), 0755); err != nil {
		log.Fatal("Failed to create data directory:", err)
	}

	gate, err := handlers.NewGate(mode, chatKey)
	if err != nil {
		log.Fatal("Failed to init access gate:", err)
	}

	capacity := history.DefaultCapacity
	if n, err := strconv.Atoi(os.Getenv("MAX_HISTORY")); err == nil && n > 0 {
		capacity = n
	}
	hist := history.New(capacity)

	// The durable mirror is optional; without MONGODB_URI the relay runs
	// memory-only and history dies with the process.
	var durable store.Store
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		log.Println("[DB] Usando MongoDB para guardar mensajes.")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoStore, err := store.Connect(ctx, uri)
		cancel()
		if err != nil {
			log.Printf("[DB] Error conectando a MongoDB: %v", err)
			log.Println("[DB] Continuando solo con memoria RAM.")
		} else {
			log.Println("[DB] Conectado correctamente a MongoDB.")
			durable = mongoStore
			defer mongoStore.Close(context.Background())
		}
	} else {
		log.Println("[DB] Sin MONGODB_URI, usando solo memoria RAM.")
	}

	hub := handlers.NewHub(gate, hist, durable, getEnv("ALLOWED_ORIGIN", ""))
	go hub.Run()

	maxUploadMB := int64(8)
	if n, err := strconv.ParseInt(os.Getenv("MAX_UPLOAD_MB"), 10, 64); err == nil && n > 0 {
		maxUploadMB = n
	}

	h := handlers.New(hub, gate, dataDir, maxUploadMB)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)

	// Per-IP rate limiter for the credentialed upload endpoint (10 req/min,
	// burst 5). Logout stays unlimited — it must always answer 204.
	uploadLimiter := newIPRateLimiter(rate.Every(time.Minute/10), 5)

	r.Get("/ws", h.WebSocket)
	r.Post("/logout", h.Logout)
	r.With(uploadLimiter, middleware.ChatKey(gate.Verify)).Post("/upload", h.Upload)
	r.Get("/uploads/{filename}", h.ServeUpload)
	r.Handle("/metrics", promhttp.Handler())

	log.Printf("Servidor corriendo en puerto: %s (modo %s, historial %d)", port, mode, capacity)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- Per-IP rate limiter ---

type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func newIPRateLimiter(r rate.Limit, b int) func(http.Handler) http.Handler {
	rl := &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		b:        b,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Strip port if present
			if h, _, err := net.SplitHostPort(ip); err == nil {
				ip = h
			}
			if !rl.get(ip).Allow() {
				http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *ipRateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[ip]; ok {
		return l
	}
	l := rate.NewLimiter(rl.r, rl.b)
	rl.limiters[ip] = l
	return l
}
