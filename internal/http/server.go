package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"moneynotes/internal/cache"
	"moneynotes/internal/core"
	"moneynotes/internal/log"
	"moneynotes/internal/middleware/ratelimit"
	"moneynotes/internal/middleware/security"
	"moneynotes/internal/middleware/trace"
	"moneynotes/internal/screen"
	appweb "moneynotes/web"
)

// Options tunes the server. Zero values pick the defaults.
type Options struct {
	RateLimitPerMinute int
	ViewCacheTTL       time.Duration
	ViewCacheSize      int
	// TrustedProxies are CIDRs added to the built-in private ranges
	TrustedProxies []string
}

func (o Options) withDefaults() Options {
	if o.RateLimitPerMinute <= 0 {
		o.RateLimitPerMinute = ratelimit.DefaultConfig().RequestsPerMinute
	}
	if o.ViewCacheTTL <= 0 {
		o.ViewCacheTTL = 5 * time.Minute
	}
	if o.ViewCacheSize <= 0 {
		o.ViewCacheSize = 16
	}
	return o
}

type Server struct {
	http.Server
	templates *template.Template
	screen    *screen.Screen
	logger    *log.Logger
	started   time.Time

	// Views memoised per ledger revision
	viewCache    *cache.LRUCache[screen.View]
	cacheManager *cache.Manager

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// pageData feeds index.html and the partials.
type pageData struct {
	View  screen.View
	Form  screen.Form
	Error string
	Types []core.TransactionType
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, sc *screen.Screen, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	opts = opts.withDefaults()
	logger = logger.WithComponent(log.ComponentHTTP)

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute

	s := &Server{
		screen:       sc,
		logger:       logger,
		started:      time.Now(),
		viewCache:    cache.NewLRUCache[screen.View](opts.ViewCacheSize, opts.ViewCacheTTL),
		cacheManager: cache.NewManager(logger),
		limiter:      ratelimit.NewLimiter(limiterCfg),
		detector:     security.NewDetector(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.cacheManager.Register(s.viewCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(template.FuncMap{
		"rupiah": rupiah,
		"signed": core.FormatSigned,
		"pie":    buildPie,
	}).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldError, err.Error())
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.Handle("/ui/ledger", security.NoStore(http.HandlerFunc(s.handleLedgerPartial)))
	mux.Handle("/api/view", security.NoStore(http.HandlerFunc(s.handleView)))
	ledgerLogs := log.ComponentMiddleware(log.ComponentLedger)
	mux.Handle("/transactions", ledgerLogs(http.HandlerFunc(s.handleCreateTransaction)))
	mux.Handle("/transactions/delete", ledgerLogs(http.HandlerFunc(s.handleDeleteAtPosition)))
	mux.Handle("/transactions/{id}", ledgerLogs(http.HandlerFunc(s.handleDeleteByID)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.requestLogger(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError("Too many requests, slow down").Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = s.detector.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requestLogger prefers the request-scoped logger set by the trace middleware.
func (s *Server) requestLogger(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(log.LoggerContextKey).(*log.Logger); ok {
		return l
	}
	return s.logger
}

func (s *Server) logError(ctx context.Context, msg string, err error, op string, fields log.LogFields) {
	log.NewStructuredLogger(s.requestLogger(ctx)).LogError(ctx, msg, err, log.ComponentLedger, op, fields)
}

// view returns the render of the current ledger revision.
func (s *Server) view(ctx context.Context) (screen.View, error) {
	key := strconv.FormatUint(s.screen.Revision(), 10)
	v, hit, err := s.viewCache.GetOrCompute(key, func() (screen.View, error) {
		return s.screen.OnRenderRequest(ctx)
	})
	if err != nil {
		return screen.View{}, err
	}
	if hit {
		s.requestLogger(ctx).DebugContext(ctx, "View cache hit", log.FieldRevision, v.Revision)
	}
	return v, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundError("Not found").Write(w)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.templates == nil {
		s.requestLogger(r.Context()).ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		InternalServerError("Templates not loaded").Write(w)
		return
	}

	v, err := s.view(r.Context())
	if err != nil {
		s.renderFailed(w, r, err)
		return
	}
	NewHTMXResponse().
		Header("Cache-Control", "no-store").
		BodyTemplate(s.templates, "index.html", pageData{View: v, Form: screen.NewForm(), Types: core.TransactionTypes()}).
		Write(w)
}

func (s *Server) handleLedgerPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	v, err := s.view(r.Context())
	if err != nil {
		s.renderFailed(w, r, err)
		return
	}
	NewHTMXResponse().
		BodyTemplate(s.templates, "ledger", pageData{View: v}).
		Write(w)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	v, err := s.view(r.Context())
	if err != nil {
		s.requestLogger(r.Context()).ErrorContext(r.Context(), "Render failed", log.FieldError, err.Error())
		JSONError(http.StatusInternalServerError, "render failed").Write(w)
		return
	}
	NewHTMXResponse().BodyJSON(v).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	wantsJSON := WantsJSON(r)
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.requestLogger(r.Context()).WarnContext(r.Context(), "Parse body error", log.FieldError, err.Error(), log.FieldPath, r.URL.Path)
		s.badRequest(w, wantsJSON, "Invalid request format")
		return
	}

	form := parser.Form()
	next, err := s.screen.OnAddTransaction(r.Context(), form)
	if err != nil {
		if !isValidationError(err) {
			s.logError(r.Context(), "Failed to add transaction", err, log.OpAppend, log.NewFields().
				WithTransaction("", form.Type.String(), form.Category, form.Amount))
			if wantsJSON {
				JSONError(http.StatusInternalServerError, "could not save transaction").Write(w)
				return
			}
			InternalServerError("Could not save transaction").Write(w)
			return
		}
		msg := validationMessage(err)
		if wantsJSON {
			NewHTMXResponse().
				Status(http.StatusUnprocessableEntity).
				BodyJSON(map[string]interface{}{"error": msg, "form": next}).
				Write(w)
			return
		}
		NewHTMXResponse().
			Status(http.StatusUnprocessableEntity).
			BodyTemplate(s.templates, "form", pageData{Form: next, Error: msg, Types: core.TransactionTypes()}).
			Write(w)
		return
	}

	rev := s.screen.Revision()
	if wantsJSON {
		NewHTMXResponse().
			BodyJSON(map[string]interface{}{"form": next, "revision": rev}).
			Write(w)
		return
	}
	NewHTMXResponse().
		TriggerTransactionAdded(rev).
		TriggerFormReset().
		BodyTemplate(s.templates, "form", pageData{Form: next, Types: core.TransactionTypes()}).
		Write(w)
}

func (s *Server) handleDeleteAtPosition(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	wantsJSON := WantsJSON(r)
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.badRequest(w, wantsJSON, "Invalid request format")
		return
	}
	pos, err := parser.Position()
	if err != nil {
		s.badRequest(w, wantsJSON, err.Error())
		return
	}

	deleted, err := s.screen.OnDeleteTransaction(r.Context(), pos)
	if err != nil {
		fields := log.NewFields()
		fields[log.FieldPosition] = pos
		s.logError(r.Context(), "Failed to delete transaction", err, log.OpDelete, fields)
		s.deleteFailed(w, wantsJSON)
		return
	}
	s.deleted(w, wantsJSON, deleted)
}

func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	wantsJSON := WantsJSON(r)
	id, err := ParseTransactionID(r.PathValue("id"))
	if err != nil {
		s.badRequest(w, wantsJSON, err.Error())
		return
	}

	deleted, err := s.screen.OnDeleteTransactionByID(r.Context(), id)
	if err != nil {
		s.logError(r.Context(), "Failed to delete transaction", err, log.OpDelete, log.NewFields().
			WithTransaction(id.String(), "", "", ""))
		s.deleteFailed(w, wantsJSON)
		return
	}
	if !deleted {
		if wantsJSON {
			JSONError(http.StatusNotFound, "transaction not found").Write(w)
			return
		}
		NotFoundError("Transaction not found").Write(w)
		return
	}
	s.deleted(w, wantsJSON, true)
}

// deleted answers a delete. A positional delete that hit nothing still
// succeeds and leaves the screen as it is.
func (s *Server) deleted(w http.ResponseWriter, wantsJSON, deleted bool) {
	rev := s.screen.Revision()
	resp := NewHTMXResponse()
	if deleted {
		resp.TriggerTransactionDeleted(rev)
	}
	if wantsJSON {
		resp.BodyJSON(map[string]interface{}{"deleted": deleted, "revision": rev})
	}
	resp.Write(w)
}

func (s *Server) deleteFailed(w http.ResponseWriter, wantsJSON bool) {
	if wantsJSON {
		JSONError(http.StatusInternalServerError, "could not delete transaction").Write(w)
		return
	}
	InternalServerError("Could not delete transaction").Write(w)
}

func (s *Server) badRequest(w http.ResponseWriter, wantsJSON bool, msg string) {
	if wantsJSON {
		JSONError(http.StatusBadRequest, msg).Write(w)
		return
	}
	BadRequestError(msg).Write(w)
}

func (s *Server) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.requestLogger(r.Context()).ErrorContext(r.Context(), "Render failed", log.FieldError, err.Error(), log.FieldPath, r.URL.Path)
	InternalServerError("Could not render the ledger").Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().
		BodyJSON(map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(s.started).String(),
		}).
		Write(w)
}

// handleReady checks the templates and that the ledger can be read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if _, err := s.view(ctx); err != nil {
		checks["ledger"] = fmt.Sprintf("failed: %v", err)
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}

	stats := s.viewCache.Stats()
	checks["view_cache"] = map[string]interface{}{
		"entries": stats.Size,
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewHTMXResponse().
		Status(code).
		BodyJSON(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"revision":  s.screen.Revision(),
			"checks":    checks,
		}).
		Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	sec := s.detector.GetMetrics()
	rl := s.limiter.GetMetrics()
	tr := s.tracer.GetMetrics()
	vc := s.viewCache.Stats()

	w.WriteHeader(http.StatusOK)
	metric(w, "http_requests_total", "counter", "Total number of HTTP requests", tr.TotalRequests)
	metric(w, "http_response_time_avg_microseconds", "gauge", "Average response time", tr.AverageResponseTime)
	metric(w, "ledger_revision", "gauge", "Current ledger revision", int64(s.screen.Revision()))
	metric(w, "view_cache_hits_total", "counter", "View cache hits", int64(vc.Hits))
	metric(w, "view_cache_misses_total", "counter", "View cache misses", int64(vc.Misses))
	metric(w, "view_cache_entries", "gauge", "Current view cache entries", int64(vc.Size))
	metric(w, "rate_limit_hits_total", "counter", "Total rate limit hits", rl.TotalHits)
	metric(w, "active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rl.ClientCount)
	metric(w, "suspicious_requests_total", "counter", "Total suspicious requests detected", sec.SuspiciousRequests)
	metric(w, "uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}

func metric(w http.ResponseWriter, name, kind, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, v)
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidType) ||
		errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrEmptyCategory)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidType):
		return "Choose Income or Expense"
	case errors.Is(err, core.ErrEmptyCategory):
		return "Category is required"
	case errors.Is(err, core.ErrInvalidAmount):
		return "Amount must be a positive number"
	}
	return "Invalid transaction"
}
