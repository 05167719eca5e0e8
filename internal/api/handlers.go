package api

import (
	"net/http"
	"strconv"

	"gobayes/app"
	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/internal/profiling"
	"gobayes/internal/report"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCreateFit(c *gin.Context) {
	var req CreateFitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	data, err := req.Data.dataset()
	if err != nil {
		s.writeError(c, core.NewSpecificationError("data", err.Error()))
		return
	}
	control := s.defaults
	if req.Control != nil {
		control = req.Control.Merge(s.defaults)
	}

	result, err := s.fits.Fit(c.Request.Context(), app.FitRequest{
		Spec:        req.Model,
		Data:        data,
		Priors:      req.Priors,
		Control:     control,
		SamplePrior: req.SamplePrior,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	summary, err := s.analysis.Summary(result, 0, false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Location", "/api/fits/"+result.ID().String())
	c.JSON(http.StatusCreated, CreateFitResponse{Fit: newFitView(result), Summary: summary})
}

func (s *Server) handleListFits(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	fits, err := s.repo.List(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fits": fits})
}

// loadFit resolves the :id parameter; it writes the error response itself
func (s *Server) loadFit(c *gin.Context, raw string) (*fit.Result, bool) {
	id, err := core.ParseFitID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	result, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return result, true
}

func (s *Server) handleGetFit(c *gin.Context) {
	result, ok := s.loadFit(c, c.Param("id"))
	if !ok {
		return
	}
	if c.Query("draws") == "true" {
		body, err := result.MarshalJSON()
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}
	c.JSON(http.StatusOK, newFitView(result))
}

func (s *Server) handleDeleteFit(c *gin.Context) {
	id, err := core.ParseFitID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.repo.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSummary(c *gin.Context) {
	result, ok := s.loadFit(c, c.Param("id"))
	if !ok {
		return
	}

	prob := 0.0
	if raw := c.Query("prob"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prob must be a number"})
			return
		}
		prob = p
	}
	summary, err := s.analysis.Summary(result, prob, c.Query("effects") == "true")
	if err != nil {
		s.writeError(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, summary)
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", summary.HTML())
	case "markdown":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(summary.Markdown()))
	case "text":
		c.String(http.StatusOK, summary.Text())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json, html, markdown or text"})
	}
}

func (s *Server) handleCriterion(c *gin.Context) {
	result, ok := s.loadFit(c, c.Param("id"))
	if !ok {
		return
	}
	res, err := s.analysis.Criterion(result, c.DefaultQuery("criterion", "loo"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHypothesis(c *gin.Context) {
	result, ok := s.loadFit(c, c.Param("id"))
	if !ok {
		return
	}
	var req HypothesisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	results, err := s.analysis.Hypothesis(result, req.Hypotheses, req.options())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.HypothesisMarkdown(results)))
		return
	}
	c.JSON(http.StatusOK, HypothesisResponse{FitID: result.ID().String(), Results: results})
}

func (s *Server) handleCompare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	a, ok := s.loadFit(c, req.A)
	if !ok {
		return
	}
	b, ok := s.loadFit(c, req.B)
	if !ok {
		return
	}
	criterion := req.Criterion
	if criterion == "" {
		criterion = "loo"
	}

	comparison, err := s.analysis.Compare(a, b, criterion)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comparison)
}

func (s *Server) handleProfile(c *gin.Context) {
	var body DataBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err)
		return
	}
	data, err := body.dataset()
	if err != nil {
		s.writeError(c, core.NewSpecificationError("data", err.Error()))
		return
	}
	profile, err := profiling.ProfileDataset(data)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
