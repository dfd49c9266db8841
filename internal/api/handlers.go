package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eventtriage/internal/filter"
	"eventtriage/internal/logger"
	"eventtriage/internal/priority"
	"eventtriage/internal/store"
	"eventtriage/pkg/models"
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, filter.ErrInvalidFilterRange),
		errors.Is(err, store.ErrInvalidPagination),
		errors.Is(err, priority.ErrInvalidPriority):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "event not found"
	case errors.Is(err, store.ErrAggregationTimeout), errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "query timed out"
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("Request failed: %s %s request_id=%s err=%v",
			c.Request.Method, c.Request.URL.Path, c.GetString("request_id"), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

func (s *Server) listEvents(c *gin.Context) {
	req, err := parseFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := intQuery(c, "page", 1)
	if err != nil {
		fail(c, err)
		return
	}
	perPage, err := intQuery(c, "per_page", s.cfg.DefaultPageSize)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.ListEvents(c.Request.Context(), req, page, perPage, c.Query("order_by"), c.Query("order_dir"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"events": res.Events, "pagination": res.Pagination, "filters": req})
}

func (s *Server) exportEvents(c *gin.Context) {
	req, err := parseFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	limit, err := intQuery(c, "limit", s.cfg.ExportMaxRows)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.ExportEvents(c.Request.Context(), req, limit, c.Query("order_by"), c.Query("order_dir"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"total_records": len(res.Events), "events": res.Events})
}

func (s *Server) getEvent(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	ev, err := s.svc.GetEvent(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, ev)
}

type processBody struct {
	Notes string `json:"notes"`
}

func (s *Server) markProcessed(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	var body processBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		fail(c, badParam("body", err.Error()))
		return
	}
	updated, err := s.svc.MarkProcessed(c.Request.Context(), id, body.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"id": id, "updated": updated})
}

type priorityBody struct {
	Score *float64 `json:"priority_score"`
	Level string   `json:"priority_level"`
}

func (s *Server) updatePriority(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	var body priorityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, badParam("body", err.Error()))
		return
	}
	if body.Score == nil {
		fail(c, badParam("priority_score", "required"))
		return
	}
	updated, err := s.svc.UpdatePriority(c.Request.Context(), id, *body.Score, body.Level)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"id": id, "updated": updated})
}

func (s *Server) scoreEvent(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, badParam("body", err.Error()))
		return
	}
	res := s.svc.ScoreEvent(ev)
	success(c, gin.H{"analysis": res, "recommendation": s.svc.Calculator().Recommendation(res.Score, ev.AttackType)})
}

func (s *Server) summary(c *gin.Context) {
	res, err := s.svc.GetSummary(c.Request.Context())
	respond(c, res, err)
}

func (s *Server) attackDistribution(c *gin.Context) {
	res, err := s.svc.GetAttackDistribution(c.Request.Context())
	respond(c, res, err)
}

func (s *Server) hourly(c *gin.Context) {
	res, err := s.svc.GetHourlyDistribution(c.Request.Context(), c.Query("date"))
	respond(c, res, err)
}

func (s *Server) topPorts(c *gin.Context) {
	n, err := intQuery(c, "limit", 10)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.GetTopPorts(c.Request.Context(), n)
	respond(c, res, err)
}

func (s *Server) topAttackers(c *gin.Context) {
	n, err := intQuery(c, "limit", 10)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.GetTopAttackers(c.Request.Context(), n)
	respond(c, res, err)
}

func (s *Server) topTargets(c *gin.Context) {
	n, err := intQuery(c, "limit", 10)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.GetTopTargets(c.Request.Context(), n)
	respond(c, res, err)
}

func (s *Server) trend(c *gin.Context) {
	res, err := s.svc.GetTrend(c.Request.Context(), c.DefaultQuery("period", priority.PeriodWeek))
	respond(c, res, err)
}

func (s *Server) heatmap(c *gin.Context) {
	res, err := s.svc.GetRiskHeatmap(c.Request.Context())
	respond(c, res, err)
}

func (s *Server) kpi(c *gin.Context) {
	from, err := timeQuery(c, "from", false)
	if err != nil {
		fail(c, err)
		return
	}
	to, err := timeQuery(c, "to", true)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.GetKPI(c.Request.Context(), derefTime(from), derefTime(to))
	respond(c, res, err)
}

func respond(c *gin.Context, data any, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	success(c, data)
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badParam("id", "must be a positive integer")
	}
	return id, nil
}
