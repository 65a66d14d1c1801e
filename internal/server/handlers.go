package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matsen/bibnorm/internal/ingest"
	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/store"
)

// DefaultSearchLimit caps GET /papers when no limit is given.
const DefaultSearchLimit = 50

// DefaultTopN is the leaderboard length of GET /stats.
const DefaultTopN = 10

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) fail(c *gin.Context, err error) {
	var ve *reference.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, reference.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func notFound(c *gin.Context, kind, id string) {
	c.JSON(http.StatusNotFound, errorResponse{Error: kind + " " + id + " not found"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "counts": s.repo.Store.Counts()})
}

func (s *Server) addPaper(c *gin.Context) {
	var in ingest.PaperInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	id, err := s.repo.Pipeline.AddPaper(in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.written()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) addAuthor(c *gin.Context) {
	var in ingest.AuthorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	res, err := s.repo.Pipeline.AddAuthor(in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.AuthorResolved(res)
	s.written()

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (s *Server) save(c *gin.Context) {
	if err := s.repo.Save(); err != nil {
		s.fail(c, err)
		return
	}
	s.dirty.Store(false)
	c.JSON(http.StatusOK, gin.H{"status": "saved", "counts": s.repo.Store.Counts()})
}

func (s *Server) getPaper(c *gin.Context) {
	id := c.Param("id")
	p, ok := s.repo.Store.GetPaper(id)
	if !ok {
		notFound(c, "paper", id)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getPaperDetails(c *gin.Context) {
	id := c.Param("id")
	// Entries are keyed by the write generation seen before the store read, so a
	// projection that raced a write is never served after it.
	key := detailsKey(s.generation.Load(), id)
	if cached, ok := s.details.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}
	d, ok := s.repo.Store.GetPaperWithDetails(id)
	if !ok {
		notFound(c, "paper", id)
		return
	}
	s.details.SetDefault(key, d)
	c.JSON(http.StatusOK, d)
}

func (s *Server) getAuthor(c *gin.Context) {
	id := c.Param("id")
	a, ok := s.repo.Store.GetAuthor(id)
	if !ok {
		notFound(c, "author", id)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) getVenue(c *gin.Context) {
	id := c.Param("id")
	v, ok := s.repo.Store.GetVenue(id)
	if !ok {
		notFound(c, "venue", id)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) searchPapers(c *gin.Context) {
	f := store.Filter{
		Title:   c.Query("title"),
		Year:    c.Query("year"),
		Authors: c.QueryArray("author"),
		Venue:   c.Query("venue"),
		Limit:   DefaultSearchLimit,
	}
	if raw := c.Query("type"); raw != "" {
		kind, err := reference.ParseKind(raw)
		if err != nil {
			s.fail(c, err)
			return
		}
		f.Type = kind
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Field: "limit"})
			return
		}
		f.Limit = n
	}

	papers := s.repo.Store.SearchPapers(f)
	if papers == nil {
		papers = []reference.Paper{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(papers), "papers": papers})
}

func (s *Server) stats(c *gin.Context) {
	n := DefaultTopN
	if raw := c.Query("top"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "top must be a non-negative integer", Field: "top"})
			return
		}
		n = v
	}
	c.JSON(http.StatusOK, s.repo.Store.Stats(n))
}
