package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/railconnect/route-finder/internal/models"
	"github.com/railconnect/route-finder/internal/services"
	"github.com/sirupsen/logrus"
)

// Station listing paging limits
const (
	defaultStationLimit = 100
	maxStationLimit     = 1000
)

// RouteFinder answers route and station queries
type RouteFinder interface {
	FindRoutes(ctx context.Context, query *models.RouteQuery) (*models.RouteSearchResponse, error)
	ListStations(ctx context.Context, skip, limit int) ([]models.Station, error)
}

// PrecomputeScheduler starts and reports route cache precompute runs
type PrecomputeScheduler interface {
	RunPrecomputeNow() error
	GetJobStatus() map[string]interface{}
}

// RouteHandler handles HTTP requests for route search
type RouteHandler struct {
	finder    RouteFinder
	scheduler PrecomputeScheduler
	logger    *logrus.Logger
}

// NewRouteHandler creates a new route handler.
// scheduler may be nil when precomputation is not wired.
func NewRouteHandler(finder RouteFinder, scheduler PrecomputeScheduler, logger *logrus.Logger) *RouteHandler {
	return &RouteHandler{
		finder:    finder,
		scheduler: scheduler,
		logger:    logger,
	}
}

// FindRoutes handles GET /api/v1/routes
// @Summary Find train routes
// @Description Direct and connecting itineraries between two stations on a date
// @Tags Routes
// @Produce json
// @Param source query string true "Station code, name or city"
// @Param destination query string true "Station code, name or city"
// @Param date query string true "Travel date (YYYY-MM-DD)"
// @Param criteria query string false "fastest or fewest_switches"
// @Param switches query string false "Comma-separated subset of 0,1,2 or all"
// @Success 200 {object} models.RouteSearchResponse
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 503 {object} map[string]interface{} "Timetable unavailable"
// @Router /api/v1/routes [get]
func (h *RouteHandler) FindRoutes(c *gin.Context) {
	var query models.RouteQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.logger.WithError(err).Warn("Invalid route query")
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request format",
			"error":   err.Error(),
		})
		return
	}

	response, err := h.finder.FindRoutes(c.Request.Context(), &query)
	if err != nil {
		var validationErr *models.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": validationErr.Message,
			})
		case errors.Is(err, services.ErrTimetableUnavailable):
			h.logger.WithError(err).Error("Route search failed - timetable unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "error",
				"message": "Timetable is temporarily unavailable. Please try again later.",
			})
		default:
			h.logger.WithError(err).Error("Route search failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Failed to search for routes. Please try again later.",
			})
		}
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListStations handles GET /api/v1/stations
func (h *RouteHandler) ListStations(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "skip must be a non-negative integer",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultStationLimit)))
	if err != nil || limit < 1 || limit > maxStationLimit {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "limit must be between 1 and " + strconv.Itoa(maxStationLimit),
		})
		return
	}

	stations, err := h.finder.ListStations(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list stations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to list stations",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"stations": stations,
		"count":    len(stations),
		"skip":     skip,
		"limit":    limit,
	})
}

// TriggerPrecompute handles POST /api/v1/admin/cache/precompute
func (h *RouteHandler) TriggerPrecompute(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "Route cache precompute is not enabled",
		})
		return
	}

	if err := h.scheduler.RunPrecomputeNow(); err != nil {
		if errors.Is(err, services.ErrPrecomputeRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"status":  "error",
				"message": "A precompute run is already in progress",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to start precompute")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to start precompute",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Route cache precompute started",
	})
}

// PrecomputeStatus handles GET /api/v1/admin/cache/status
func (h *RouteHandler) PrecomputeStatus(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"enabled": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"enabled": true,
		"jobs":    h.scheduler.GetJobStatus(),
	})
}
