package chunkhttp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sir_venger/chunk_lite/internal/usecase/chunksvc"
	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

const (
	// formOverhead: запас на заголовки и текстовые поля multipart-формы сверх размера чанка.
	formOverhead = 1 << 20
	// formMemory: сколько формы держим в памяти, остальное multipart сбрасывает во временные файлы.
	formMemory     = 8 << 20
	mergeBodyLimit = 64 << 10
)

// Options задаёт зависимости и лимиты HTTP-слоя.
type Options struct {
	Service      chunksvc.Service
	Logger       *slog.Logger
	MaxChunkSize int64
	// GCTTL задаёт возраст, после которого ручной /admin/gc считает сессию брошенной.
	GCTTL time.Duration
}

// Server обслуживает HTTP API загрузки чанков.
type Server struct {
	svc          chunksvc.Service
	log          *slog.Logger
	maxChunkSize int64
	gcTTL        time.Duration
}

// New создаёт HTTP-обработчик API.
func New(opts Options) http.Handler {
	srv := &Server{
		svc:          opts.Service,
		log:          opts.Logger,
		maxChunkSize: opts.MaxChunkSize,
		gcTTL:        opts.GCTTL,
	}
	if srv.log == nil {
		srv.log = slog.Default()
	}
	if srv.gcTTL <= 0 {
		srv.gcTTL = 24 * time.Hour
	}

	return srv.routes()
}

// routes регистрирует обработчики API, здоровья и администрирования.
func (a *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/check", a.check)
		api.Post("/upload", a.uploadForm)
		api.Put("/chunks/{hash}/{index}", a.uploadRaw)
		api.Post("/merge", a.merge)
		api.Get("/artifacts/{name}", a.artifact)
	})

	r.Get(chunkproto.PathHealth, a.health)
	r.Post(chunkproto.PathGC, a.gcOnce)
	r.Get(chunkproto.PathSessions, a.sessions)

	return r
}

// bodyLimit ограничивает тело запроса с чанком; 0 снимает ограничение.
func (a *Server) bodyLimit(overhead int64) int64 {
	if a.maxChunkSize <= 0 {
		return 0
	}
	return a.maxChunkSize + overhead
}
