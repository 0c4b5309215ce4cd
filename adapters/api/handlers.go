package api

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hypolab/adapters/excel"
	"hypolab/app"
	"hypolab/domain/core"
	apperrors "hypolab/internal/errors"
	"hypolab/internal/lifecycle"
	"hypolab/internal/scorecard"
	"hypolab/internal/validation"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}

func (s *Server) handleRubric(c *gin.Context) {
	c.JSON(http.StatusOK, scorecard.Rubric())
}

// handleValidateBundle checks records without storing them
func (s *Server) handleValidateBundle(c *gin.Context) {
	var b validation.Bundle
	if err := c.ShouldBindJSON(&b); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, validation.ValidateBundle(b))
}

type scoreContributionsResponse struct {
	Scores  []scorecard.ContributionScore `json:"scores"`
	Summary scorecard.Summary             `json:"summary"`
}

func (s *Server) handleScoreContributions(c *gin.Context) {
	var req struct {
		Contributions []scorecard.Contribution `json:"contributions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	scores, summary, err := s.svc.ScoreContributions(req.Contributions)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scoreContributionsResponse{Scores: scores, Summary: summary})
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.svc.Sessions()})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req app.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := s.svc.Register(c.Request.Context(), c.Param("session"), req)
	if err != nil {
		if !report.Valid && len(report.Errors) > 0 {
			c.JSON(http.StatusUnprocessableEntity, report)
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (s *Server) handleListHypotheses(c *gin.Context) {
	list, err := s.svc.Hypotheses(c.Param("session"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetHypothesis(c *gin.Context) {
	id, err := core.ParseHypothesisID(c.Param("id"))
	if err != nil {
		s.writeError(c, apperrors.WithCode(apperrors.CodeInvalidInput, err))
		return
	}
	h, err := s.svc.Hypothesis(c.Param("session"), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) handleTransition(c *gin.Context) {
	var req app.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := s.svc.Transition(c.Request.Context(), c.Param("session"), core.HypothesisID(c.Param("id")), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.transitions.WithLabelValues(string(out.Transition.Trigger), string(out.Transition.ToState)).Inc()
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListPredictions(c *gin.Context) {
	list, err := s.svc.Predictions(c.Param("session"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleTestReport(c *gin.Context) {
	id, err := core.ParseTestID(c.Param("id"))
	if err != nil {
		s.writeError(c, apperrors.WithCode(apperrors.CodeInvalidInput, err))
		return
	}
	report, err := s.svc.ValidateTest(c.Param("session"), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleExecute(c *gin.Context) {
	var req app.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := s.svc.ExecuteTest(c.Request.Context(), c.Param("session"), req)
	if err != nil {
		s.metrics.executions.WithLabelValues("rejected").Inc()
		s.writeError(c, err)
		return
	}

	if result.Applied == nil {
		s.metrics.executions.WithLabelValues("recorded").Inc()
	} else {
		s.metrics.executions.WithLabelValues("applied").Inc()
		for _, a := range result.Applied.Applied {
			s.metrics.transitions.WithLabelValues(string(a.Transition.Trigger), string(a.Transition.ToState)).Inc()
		}
		for _, f := range result.Applied.Failed {
			if f.Transition != nil {
				s.metrics.refusals.WithLabelValues(string(f.Transition.Code)).Inc()
			}
		}
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetHistory(c *gin.Context) {
	history, err := s.svc.History(c.Param("session"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) handleImportHistory(c *gin.Context) {
	var history lifecycle.History
	if err := c.ShouldBindJSON(&history); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.svc.ImportHistory(c.Request.Context(), c.Param("session"), history); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRestoreHistory(c *gin.Context) {
	if err := s.svc.Restore(c.Request.Context(), c.Param("session")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTransitionsForResult(c *gin.Context) {
	resultID := c.Query("test_result")
	if resultID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "test_result query parameter is required"})
		return
	}
	list, err := s.svc.TransitionsForResult(c.Param("session"), resultID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleScoreSession(c *gin.Context) {
	score, err := s.svc.ScoreSession(c.Param("session"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.sessionGrades.WithLabelValues(score.Grade).Inc()
	c.JSON(http.StatusOK, score)
}

func (s *Server) handleScorecardWorkbook(c *gin.Context) {
	score, err := s.svc.ScoreSession(c.Param("session"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := excel.WriteScorecard(&buf, excel.Report{Session: &score}); err != nil {
		s.logger.Error("scorecard workbook failed", zap.String("session_id", score.SessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render workbook"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="scorecard-`+score.SessionID+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
