package interop

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/executor"
	"github.com/vk/dlsgrid/internal/metrics"
	"github.com/vk/dlsgrid/internal/output"
)

// Server receives hand-overs for the groups this host serves.
type Server struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	contexts cmap.ConcurrentMap[string, *executor.GroupContext]
}

// NewServer returns a server with no groups. A nil logger falls back to
// slog.Default; nil metrics record nothing.
func NewServer(logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		metrics:  m,
		contexts: cmap.New[*executor.GroupContext](),
	}
}

// Serve makes the server accept hand-overs for the group of gc. A group that
// is already served is replaced.
func (s *Server) Serve(gc *executor.GroupContext) {
	s.contexts.Set(gc.Group(), gc)
}

// Context returns the context serving group.
func (s *Server) Context(group string) (*executor.GroupContext, bool) {
	return s.contexts.Get(group)
}

// Groups returns the names of the served groups.
func (s *Server) Groups() []string {
	return s.contexts.Keys()
}

// Register adds the dispatch and plan routes to r.
func (s *Server) Register(r gin.IRoutes) {
	r.POST("/dispatch/:group/:start/:originator/:propagate", s.handleDispatch)
	r.GET("/plan/:group", s.handlePlan)
}

func (s *Server) handleDispatch(c *gin.Context) {
	group := c.Param("group")
	logger := s.logger.With("group", group, "start_task", c.Param("start"), "originator", c.Param("originator"))

	gc, ok := s.contexts.Get(group)
	if !ok {
		s.fail(c, group, http.StatusNotFound, fmt.Errorf("group '%s' is not served by this host", group))
		return
	}

	out := output.New()
	if err := c.ShouldBindJSON(out); err != nil {
		s.fail(c, group, http.StatusBadRequest, fmt.Errorf("invalid output body: %w", err))
		return
	}

	incoming := ParseExecuted(c.GetHeader(HeaderExecutedSpans))
	logger.Debug("Dispatch request received.", "executed", incoming, "propagate", c.Param("propagate"))

	ctx := ctxlog.WithLogger(c.Request.Context(), logger)
	res, err := gc.RunGroup(ctx, out, executor.RunOptions{
		Propagate:   executor.ParseSegment(c.Param("propagate")),
		StartTask:   c.Param("start"),
		SkipList:    incoming,
		TraceHeader: c.Request.Header,
		Originator:  c.Param("originator"),
	})
	if err != nil {
		logger.Error("Dispatched run failed.", "error", err)
		s.fail(c, group, http.StatusInternalServerError, err)
		return
	}

	c.Header(HeaderExecutedSpans, JoinExecuted(incoming, res.Executed))
	c.JSON(http.StatusOK, res.Output)
	s.metrics.ObserveDispatchRequest(group, http.StatusOK)
}

func (s *Server) handlePlan(c *gin.Context) {
	gc, ok := s.contexts.Get(c.Param("group"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("group '%s' is not served by this host", c.Param("group"))})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"host": gc.Host().Name,
		"plan": gc.Plan(),
	})
}

func (s *Server) fail(c *gin.Context, group string, code int, err error) {
	s.metrics.ObserveDispatchRequest(group, code)
	c.JSON(code, gin.H{"error": err.Error()})
}
