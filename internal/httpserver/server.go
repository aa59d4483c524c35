package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frost-warsaw/frost/internal/gtfsrt"
	"github.com/frost-warsaw/frost/internal/model"
	"github.com/frost-warsaw/frost/internal/timestamp"
)

// SessionReporter exposes the running collection session's counters.
type SessionReporter interface {
	Progress() model.Summary
}

// Options wires optional collaborators into the API.
type Options struct {
	// Session adds live session counters to /api/health and /api/summary.
	Session SessionReporter
	// Stream serves /api/stream when set.
	Stream http.Handler
	// Parser reads time cursors and observation times. Defaults to the
	// API's local zone.
	Parser *timestamp.Parser
}

// Server provides a read-only HTTP API over the vehicle store. It runs next
// to the collector and only reads.
type Server struct {
	addr      string
	store     model.ReadAPI
	opts      Options
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store model.ReadAPI, opts ...Options) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Parser == nil {
		o.Parser = timestamp.NewParser()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		store:  store,
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler builds the router without starting a listener.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/summary", s.handleSummary)
	r.GET("/api/positions", s.handlePositions)
	r.GET("/api/positions/latest", s.handleLatestPositions)
	r.GET("/api/schema", s.handleSchema)
	r.POST("/api/query", s.handleQuery)
	r.GET("/api/gtfsrt/vehicle-positions", s.handleGTFSRT)
	if s.opts.Stream != nil {
		r.GET("/api/stream", gin.WrapH(s.opts.Stream))
	}
	return r
}

// Start binds addr and begins serving HTTP requests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.Serve(listener)
	return nil
}

// Serve begins serving HTTP requests on an already bound listener. It lets a
// caller claim the port before doing work that is hard to undo.
func (s *Server) Serve(listener net.Listener) {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	s.startTime = time.Now()

	go s.server.Serve(listener)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	body := gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"records": counts["vehicles"],
	}
	if s.opts.Session != nil {
		p := s.opts.Session.Progress()
		body["session_id"] = p.SessionID
		body["cycles"] = p.Cycles
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSummary(c *gin.Context) {
	var summary model.Summary
	if s.opts.Session != nil {
		summary = s.opts.Session.Progress()
	}

	storeSummary, err := s.store.Summarize(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarize store"})
		return
	}
	summary.StoreSummary = storeSummary
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handlePositions(c *gin.Context) {
	filter := model.PositionFilter{
		VehicleNumber: c.Query("vehicle"),
		Line:          c.Query("line"),
	}

	for _, cursor := range []struct {
		param string
		dst   *string
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := c.Query(cursor.param)
		if raw == "" {
			continue
		}
		normalized, ok := s.opts.Parser.Normalize(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + cursor.param + " time"})
			return
		}
		*cursor.dst = normalized
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	positions, err := s.store.Positions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query positions"})
		return
	}
	if positions == nil {
		positions = []model.VehiclePosition{}
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleLatestPositions(c *gin.Context) {
	positions, err := s.store.LatestPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query latest positions"})
		return
	}
	if positions == nil {
		positions = []model.VehiclePosition{}
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleGTFSRT(c *gin.Context) {
	positions, err := s.store.LatestPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query latest positions"})
		return
	}

	text := c.Query("format") == "text"
	data, err := gtfsrt.Marshal(gtfsrt.BuildFeed(positions, time.Now(), s.opts.Parser), text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode feed"})
		return
	}

	contentType := gtfsrt.ContentTypeProto
	if text {
		contentType = gtfsrt.ContentTypeText
	}
	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) handleSchema(c *gin.Context) {
	columns, err := s.store.TableColumns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.store.GetSchemaDescription(),
		"tables":      map[string][]model.ColumnInfo{"vehicles": columns},
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
