package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/knapping/internal/knapping"
	"github.com/annel0/knapping/internal/logging"
	"github.com/annel0/knapping/internal/middleware"
	"github.com/annel0/knapping/internal/session"
	"github.com/annel0/knapping/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "knapd"

// RestServer представляет REST API сервер обработки камня
type RestServer struct {
	router   *gin.Engine
	server   *http.Server
	sessions *session.Manager
	patterns *knapping.PatternStore
	history  storage.CompletionRepo
	webhooks *WebhookManager
	metrics  *ServerMetrics
	port     string
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string                 // порт для запуска сервера, например ":8090"
	Sessions *session.Manager       // менеджер сессий
	Patterns *knapping.PatternStore // каталог шаблонов
	History  storage.CompletionRepo // история завершений (необязательна)
	Webhooks *WebhookManager        // исходящие webhook'и (необязательны)
	Registry *prometheus.Registry   // регистр метрик, nil - дефолтный
	Logger   *logging.Logger        // логгер запросов, nil - глобальный
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8090"
	}
	if config.Patterns == nil {
		config.Patterns = knapping.NewPatternStore()
	}
	if config.Webhooks == nil {
		config.Webhooks = NewWebhookManager()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware(serviceName))

	loggerMw := middleware.NewRequestLogger(config.Logger)
	router.Use(loggerMw.Handler())

	promMw := middleware.NewPrometheusMiddleware("rest_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:   router,
		sessions: config.Sessions,
		patterns: config.Patterns,
		history:  config.History,
		webhooks: config.Webhooks,
		metrics:  NewServerMetrics(),
		port:     config.Port,
	}
	rs.server = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/server", rs.handleServerInfo)
		api.GET("/patterns", rs.handleListPatterns)
		api.GET("/patterns/:name", rs.handleGetPattern)
		api.GET("/history", rs.handleHistory)

		sessions := api.Group("/sessions")
		sessions.GET("", rs.handleListSessions)
		sessions.POST("", rs.handleStartSession)
		sessions.GET("/:id", rs.handleGetSession)
		sessions.DELETE("/:id", rs.handleAbandonSession)
		sessions.POST("/:id/strike", rs.handleStrike)
		sessions.POST("/:id/complete", rs.handleComplete)
		sessions.POST("/:id/restore", rs.handleRestore)

		webhooks := api.Group("/webhooks")
		webhooks.GET("", rs.handleGetWebhooks)
		webhooks.POST("", rs.handleCreateWebhook)
		webhooks.GET("/events", rs.handleGetWebhookEventTypes)
		webhooks.DELETE("/:id", rs.handleDeleteWebhook)
	}
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает HTTP сервер и блокируется до остановки
func (rs *RestServer) Start() error {
	logging.Info("🌐 REST API запущен на %s", rs.port)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StartRequest запрос на новую заготовку
type StartRequest struct {
	Pattern string `json:"pattern" binding:"required"`
	Mode    string `json:"mode"`
}

// StrikeRequest запрос удара
type StrikeRequest struct {
	X *int `json:"x" binding:"required"`
	Z *int `json:"z" binding:"required"`
}

// CellDTO координата клетки в ответе
type CellDTO struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// StrikeResponse результат удара
type StrikeResponse struct {
	Kind          string       `json:"kind"`
	Removed       []CellDTO    `json:"removed"`
	Debris        int          `json:"debris"`
	Mistakes      int          `json:"mistakes"`
	TotalMistakes int          `json:"total_mistakes"`
	Destroyed     bool         `json:"destroyed"`
	PocketCleared bool         `json:"pocket_cleared"`
	Completable   bool         `json:"completable"`
	Session       session.Info `json:"session"`
}

// CompletionResponse результат проверки завершения
type CompletionResponse struct {
	Complete          bool         `json:"complete"`
	TotalMistakes     int          `json:"total_mistakes"`
	QualityMultiplier float64      `json:"quality_multiplier"`
	Session           session.Info `json:"session"`
}

// PatternDTO шаблон с маской для клиента
type PatternDTO struct {
	Name string   `json:"name"`
	Rows []string `json:"rows"`
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

// sessionError переводит ошибки менеджера в HTTP статусы
func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		fail(c, http.StatusNotFound, "Сессия не найдена")
	case errors.Is(err, session.ErrSessionClosed):
		fail(c, http.StatusConflict, "Заготовка уже завершена или разрушена")
	case errors.Is(err, session.ErrUnknownPattern):
		fail(c, http.StatusBadRequest, "Неизвестный шаблон")
	default:
		logging.Error("❌ Ошибка обработки запроса: %v", err)
		fail(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
	}
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleServerInfo возвращает информацию о процессе и сессиях
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	stats := rs.metrics.Snapshot()
	sessions := rs.sessions.List()
	active := 0
	for _, s := range sessions {
		if !s.Completed && !s.Destroyed {
			active++
		}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data: gin.H{
			"name":            "Knapping Server",
			"status":          "running",
			"stats":           stats,
			"sessions":        len(sessions),
			"active_sessions": active,
			"default_mode":    rs.sessions.DefaultMode().String(),
		},
	})
}

func (rs *RestServer) handleListPatterns(c *gin.Context) {
	names := rs.patterns.Names()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Шаблоны получены",
		Data: gin.H{
			"patterns": names,
			"total":    len(names),
		},
	})
}

func (rs *RestServer) handleGetPattern(c *gin.Context) {
	p, ok := rs.patterns.Lookup(c.Param("name"))
	if !ok {
		fail(c, http.StatusNotFound, "Шаблон не найден")
		return
	}
	mask := p.Mask()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Шаблон получен",
		Data:    PatternDTO{Name: p.Name, Rows: mask.Rows('#', '.')},
	})
}

func (rs *RestServer) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сессии получены",
		Data:    rs.sessions.List(),
	})
}

func (rs *RestServer) handleStartSession(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}

	mode := rs.sessions.DefaultMode()
	if req.Mode != "" {
		parsed, err := knapping.ParseMode(req.Mode)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}

	info, err := rs.sessions.Start(c.Request.Context(), req.Pattern, mode)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Заготовка создана",
		Data:    info,
	})
}

func (rs *RestServer) handleGetSession(c *gin.Context) {
	info, err := rs.sessions.Get(knapping.SurfaceID(c.Param("id")))
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сессия получена", Data: info})
}

func (rs *RestServer) handleAbandonSession(c *gin.Context) {
	if err := rs.sessions.Abandon(c.Request.Context(), knapping.SurfaceID(c.Param("id"))); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сессия удалена"})
}

func (rs *RestServer) handleStrike(c *gin.Context) {
	var req StrikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}

	out, info, err := rs.sessions.ResolveStrike(c.Request.Context(), knapping.SurfaceID(c.Param("id")), *req.X, *req.Z)
	if err != nil {
		sessionError(c, err)
		return
	}

	removed := make([]CellDTO, 0, len(out.Removed))
	for _, p := range out.Removed {
		removed = append(removed, CellDTO{X: p.X, Z: p.Y})
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Удар обработан",
		Data: StrikeResponse{
			Kind:          out.Kind.String(),
			Removed:       removed,
			Debris:        out.Debris,
			Mistakes:      out.Mistakes,
			TotalMistakes: out.TotalMistakes,
			Destroyed:     out.Destroyed,
			PocketCleared: out.PocketCleared,
			Completable:   out.Completable,
			Session:       info,
		},
	})
}

func (rs *RestServer) handleComplete(c *gin.Context) {
	out, info, err := rs.sessions.CheckCompletion(c.Request.Context(), knapping.SurfaceID(c.Param("id")))
	if err != nil {
		sessionError(c, err)
		return
	}

	message := "Отход ещё не снят"
	if out.Complete {
		message = "Заготовка завершена"
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: message,
		Data: CompletionResponse{
			Complete:          out.Complete,
			TotalMistakes:     out.TotalMistakes,
			QualityMultiplier: out.QualityMultiplier,
			Session:           info,
		},
	})
}

func (rs *RestServer) handleRestore(c *gin.Context) {
	info, err := rs.sessions.Restore(c.Request.Context(), knapping.SurfaceID(c.Param("id")))
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сессия восстановлена", Data: info})
}

func (rs *RestServer) handleHistory(c *gin.Context) {
	if rs.history == nil {
		fail(c, http.StatusServiceUnavailable, "История недоступна")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			fail(c, http.StatusBadRequest, "Неверный limit")
			return
		}
		limit = parsed
	}

	records, err := rs.history.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logging.Error("❌ Ошибка чтения истории: %v", err)
		fail(c, http.StatusInternalServerError, "Внутренняя ошибка сервера")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "История получена",
		Data: gin.H{
			"records": records,
			"total":   len(records),
		},
	})
}

func (rs *RestServer) handleGetWebhooks(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Webhook'и получены",
		Data:    rs.webhooks.GetWebhooks(),
	})
}

func (rs *RestServer) handleCreateWebhook(c *gin.Context) {
	var webhook OutboundWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Webhook создан",
		Data:    rs.webhooks.AddWebhook(webhook),
	})
}

func (rs *RestServer) handleGetWebhookEventTypes(c *gin.Context) {
	types := rs.webhooks.EventTypes()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Типы событий получены",
		Data: gin.H{
			"event_types": types,
			"total":       len(types),
		},
	})
}

func (rs *RestServer) handleDeleteWebhook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "Неверный ID webhook'а")
		return
	}
	if !rs.webhooks.DeleteWebhook(id) {
		fail(c, http.StatusNotFound, "Webhook не найден")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Webhook удален успешно"})
}
