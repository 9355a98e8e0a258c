package api

import (
	"net/http"

	"dashboard/internal/engine"
	"dashboard/internal/metrics"
	"dashboard/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Handler struct {
	svc    *engine.Service
	loader *engine.Loader
	store  engine.Store
	log    zerolog.Logger
}

func NewHandler(svc *engine.Service, loader *engine.Loader, store engine.Store, log zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		loader: loader,
		store:  store,
		log:    log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes mounts the product endpoints under basePath/products.
// A positive ingestLimit caps how often a client may trigger ingestion.
func (h *Handler) RegisterRoutes(e *echo.Echo, basePath string, ingestLimit rate.Limit) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", metrics.Handler())

	products := e.Group(basePath + "/products")

	var ingestMW []echo.MiddlewareFunc
	if ingestLimit > 0 {
		ingestMW = append(ingestMW, ingestRateLimiter(ingestLimit))
	}
	products.GET("/fetch-products", h.FetchProducts, ingestMW...)
	products.GET("/transactions", h.ListTransactions)
	products.GET("/statistics", h.GetStatistics)
	products.GET("/bar-chart", h.GetBarChart)
	products.GET("/pie-chart", h.GetPieChart)
	products.GET("/combined-statistics", h.GetCombinedStatistics)
}

func ingestRateLimiter(limit rate.Limit) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  limit,
			Burst: 1,
		}),
		DenyHandler: func(c echo.Context, _ string, err error) error {
			return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
				Message: "Too many ingestion requests",
				Error:   "rate limit exceeded",
			})
		},
	})
}

// --- HANDLERS ---

func (h *Handler) fail(c echo.Context, message string, err error) error {
	h.log.Error().
		Err(err).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg(message)
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Message: message,
		Error:   err.Error(),
	})
}

func (h *Handler) month(c echo.Context) int {
	month, err := parseMonth(c.QueryParam("month"))
	if err != nil {
		h.log.Debug().Err(err).Msg("using empty month")
		return noMonth
	}
	return month
}

func (h *Handler) FetchProducts(c echo.Context) error {
	res, err := h.loader.Load(c.Request().Context())
	if err != nil {
		return h.fail(c, "Error fetching or saving products", err)
	}
	metrics.RecordIngest(res.Inserted, res.Duplicates, res.Rejected)
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	page, err := parsePage(c.QueryParam("page"))
	if err != nil {
		page = defaultPage
	}
	perPage, err := parsePerPage(c.QueryParam("perPage"))
	if err != nil {
		perPage = defaultPerPage
	}

	result, err := h.svc.ListTransactions(c.Request().Context(), models.ListQuery{
		Filter:  engine.NewFilter(c.QueryParam("search")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return h.fail(c, "Error fetching transactions", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	stats, err := h.svc.Statistics(c.Request().Context(), h.month(c))
	if err != nil {
		return h.fail(c, "Error fetching statistics", err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetBarChart(c echo.Context) error {
	data, err := h.svc.BarChart(c.Request().Context(), h.month(c))
	if err != nil {
		return h.fail(c, "Error fetching bar chart data", err)
	}
	return c.JSON(http.StatusOK, data)
}

func (h *Handler) GetPieChart(c echo.Context) error {
	data, err := h.svc.PieChart(c.Request().Context(), h.month(c))
	if err != nil {
		return h.fail(c, "Error fetching pie chart data", err)
	}
	return c.JSON(http.StatusOK, data)
}

func (h *Handler) GetCombinedStatistics(c echo.Context) error {
	data, err := h.svc.Combined(c.Request().Context(), h.month(c))
	if err != nil {
		return h.fail(c, "Error fetching combined statistics", err)
	}
	return c.JSON(http.StatusOK, data)
}

func (h *Handler) Health(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Message: "store unavailable",
			Error:   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, models.MessageResponse{Message: "ok"})
}
