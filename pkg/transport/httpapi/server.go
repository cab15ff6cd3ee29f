// Package httpapi exposes the request handler over HTTP+JSON: a
// gin.New + gin.Recovery engine with a versioned route group covering
// the table/vector operation set this service implements.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mishard/core/pkg/backend"
	"github.com/mishard/core/pkg/mishard"
	"github.com/mishard/core/pkg/planner"
	"github.com/mishard/core/pkg/service"
)

const requestIDHeader = "X-Request-Id"

// requestID tags every request with a UUID (or keeps the one the client
// sent), echoed back in the response header and stored in the gin
// context under "request_id".
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Server is the HTTP API server.
type Server struct {
	svc    *service.Service
	logger *zap.Logger
	engine *gin.Engine
}

// NewServer creates a Server wrapping svc.
func NewServer(svc *service.Service, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())

	s := &Server{svc: svc, logger: logger, engine: engine}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api/v1")
	{
		api.POST("/tables", s.handleCreateTable)
		api.GET("/tables", s.handleShowTables)
		api.GET("/tables/:table", s.handleHasTable)
		api.DELETE("/tables/:table", s.handleDropTable)
		api.GET("/tables/:table/schema", s.handleDescribeTable)
		api.GET("/tables/:table/count", s.handleCountTable)
		api.POST("/tables/:table/preload", s.handlePreloadTable)
		api.DELETE("/tables/:table/range", s.handleDeleteByRange)

		api.POST("/tables/:table/index", s.handleCreateIndex)
		api.GET("/tables/:table/index", s.handleDescribeIndex)
		api.DELETE("/tables/:table/index", s.handleDropIndex)

		api.POST("/tables/:table/vectors", s.handleInsert)
		api.POST("/tables/:table/search", s.handleSearch)

		api.POST("/cmd/:cmd", s.handleCmd)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Unix()})
}

func statusHTTPCode(code mishard.Code) int {
	switch code {
	case mishard.Success:
		return http.StatusOK
	case mishard.InvalidArgument:
		return http.StatusBadRequest
	case mishard.NotFound:
		return http.StatusNotFound
	case mishard.Unavailable:
		return http.StatusServiceUnavailable
	case mishard.Canceled:
		return 499
	case mishard.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeStatus(c *gin.Context, st *mishard.Status) {
	c.JSON(statusHTTPCode(st.Code), gin.H{"code": st.Code.String(), "reason": st.Reason})
}

type createTableRequest struct {
	Dimension     int    `json:"dimension"`
	IndexFileSize int64  `json:"index_file_size"`
	Metric        string `json:"metric"`
}

func (s *Server) handleCreateTable(c *gin.Context) {
	var req createTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	table := c.Query("name")

	metric := mishard.L2
	if req.Metric == "IP" {
		metric = mishard.IP
	}

	st := s.svc.CreateTable(c.Request.Context(), mishard.TableDescriptor{
		Name:          table,
		Dimension:     req.Dimension,
		IndexFileSize: req.IndexFileSize,
		Metric:        metric,
	})
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created", "table": table})
}

func (s *Server) handleShowTables(c *gin.Context) {
	names, st := s.svc.ShowTables(c.Request.Context())
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": names})
}

func (s *Server) handleHasTable(c *gin.Context) {
	table := c.Param("table")
	ok, st := s.svc.HasTable(c.Request.Context(), table)
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": table, "exists": ok})
}

func (s *Server) handleDropTable(c *gin.Context) {
	table := c.Param("table")
	if st := s.svc.DropTable(c.Request.Context(), table); !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "dropped", "table": table})
}

func (s *Server) handleDescribeTable(c *gin.Context) {
	table := c.Param("table")
	d, st := s.svc.DescribeTable(c.Request.Context(), table)
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"table":           d.Name,
		"dimension":       d.Dimension,
		"index_file_size": d.IndexFileSize,
		"metric":          d.Metric.String(),
	})
}

func (s *Server) handleCountTable(c *gin.Context) {
	table := c.Param("table")
	n, st := s.svc.CountTable(c.Request.Context(), table)
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": table, "count": n})
}

func (s *Server) handlePreloadTable(c *gin.Context) {
	table := c.Param("table")
	if st := s.svc.PreloadTable(c.Request.Context(), table); !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "preloaded", "table": table})
}

type deleteByRangeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s *Server) handleDeleteByRange(c *gin.Context) {
	table := c.Param("table")
	var req deleteByRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st := s.svc.DeleteByRange(c.Request.Context(), table, mishard.TimeRange{Start: req.Start, End: req.End})
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "table": table})
}

type createIndexRequest struct {
	Type  string `json:"type"`
	NList int    `json:"nlist"`
}

func (s *Server) handleCreateIndex(c *gin.Context) {
	table := c.Param("table")
	var req createIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st := s.svc.CreateIndex(c.Request.Context(), table, backend.IndexParams{Type: req.Type, NList: req.NList})
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created", "table": table})
}

func (s *Server) handleDescribeIndex(c *gin.Context) {
	table := c.Param("table")
	p, st := s.svc.DescribeIndex(c.Request.Context(), table)
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": table, "type": p.Type, "nlist": p.NList})
}

func (s *Server) handleDropIndex(c *gin.Context) {
	table := c.Param("table")
	if st := s.svc.DropIndex(c.Request.Context(), table); !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "dropped", "table": table})
}

type insertRequest struct {
	Vectors [][]float32 `json:"vectors"`
}

func (s *Server) handleInsert(c *gin.Context) {
	table := c.Param("table")
	var req insertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ids, st := s.svc.Insert(c.Request.Context(), table, req.Vectors)
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ids": ids})
}

type searchRequest struct {
	Vectors [][]float32 `json:"vectors"`
	TopK    int         `json:"topk"`
	NProbe  int         `json:"nprobe"`
	Ranges  []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"ranges"`
}

func (s *Server) handleSearch(c *gin.Context) {
	table := c.Param("table")
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ranges := make([]mishard.TimeRange, 0, len(req.Ranges))
	for _, r := range req.Ranges {
		ranges = append(ranges, mishard.TimeRange{Start: r.Start, End: r.End})
	}

	// A day-bucketed range can also be given as plain query parameters
	// (start_date/end_date, "YYYY-MM-DD"), matching how the original
	// accepted date-only range filters alongside structured queries.
	if startDate, endDate := c.Query("start_date"), c.Query("end_date"); startDate != "" && endDate != "" {
		r, err := planner.NormalizeRange(startDate, endDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ranges = append(ranges, r)
	}

	blocks, st := s.svc.Search(c.Request.Context(), service.SearchRequest{
		Table:   table,
		Vectors: req.Vectors,
		TopK:    req.TopK,
		NProbe:  req.NProbe,
		Ranges:  ranges,
	})
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": blocks})
}

func (s *Server) handleCmd(c *gin.Context) {
	cmd := c.Param("cmd")
	out, st := s.svc.Cmd(c.Request.Context(), cmd)
	if !st.OK() {
		writeStatus(c, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": out})
}
