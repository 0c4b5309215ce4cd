package excel

import (
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"hypolab/internal/scorecard"
)

// ScoredContribution pairs a contribution with its rubric result
type ScoredContribution struct {
	Name         string
	Contribution scorecard.Contribution
	Score        scorecard.ContributionScore
}

// Report is everything written to a scorecard workbook. Session may be nil.
type Report struct {
	Session       *scorecard.SessionScore
	Contributions []ScoredContribution
	Summary       scorecard.Summary
}

// WriteScorecard renders r as an xlsx workbook. Its Scores sheet uses the
// layout ReadContributions accepts, so a written workbook can be re-scored.
func WriteScorecard(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return eris.Wrap(err, "failed to name summary sheet")
	}
	for _, name := range []string{SheetDimensions, SheetContributions, SheetScores} {
		if _, err := f.NewSheet(name); err != nil {
			return eris.Wrapf(err, "failed to add sheet %s", name)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return eris.Wrap(err, "failed to create header style")
	}

	sw := &sheetWriter{f: f, header: bold}
	sw.summary(r)
	sw.dimensions(r.Session)
	sw.contributions(r.Contributions)
	sw.scores(r.Contributions)
	if sw.err != nil {
		return sw.err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "failed to write workbook")
	}
	return nil
}

// sheetWriter appends rows and keeps the first error
type sheetWriter struct {
	f      *excelize.File
	header int
	next   map[string]int
	err    error
}

func (s *sheetWriter) row(sheet string, values ...interface{}) {
	if s.err != nil {
		return
	}
	if s.next == nil {
		s.next = make(map[string]int)
	}
	s.next[sheet]++
	n := s.next[sheet]

	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		s.err = eris.Wrap(err, "bad cell")
		return
	}
	if err := s.f.SetSheetRow(sheet, cell, &values); err != nil {
		s.err = eris.Wrapf(err, "failed to write %s row %d", sheet, n)
	}
}

func (s *sheetWriter) headerRow(sheet string, values ...interface{}) {
	s.row(sheet, values...)
	if s.err != nil {
		return
	}
	if err := s.f.SetRowStyle(sheet, s.next[sheet], s.next[sheet], s.header); err != nil {
		s.err = eris.Wrapf(err, "failed to style %s header", sheet)
	}
}

func (s *sheetWriter) summary(r Report) {
	s.headerRow(SheetSummary, "metric", "value")
	if r.Session != nil {
		s.row(SheetSummary, "session", r.Session.SessionID)
		s.row(SheetSummary, "total", r.Session.Total)
		s.row(SheetSummary, "max", r.Session.Max)
		s.row(SheetSummary, "percentage", r.Session.Percentage)
		s.row(SheetSummary, "grade", r.Session.Grade)
		for _, w := range r.Session.Warnings {
			s.row(SheetSummary, "warning", w)
		}
	}
	s.row(SheetSummary, "contributions", r.Summary.Count)
	s.row(SheetSummary, "valid contributions", r.Summary.Valid)
	if r.Summary.Count > 0 {
		s.row(SheetSummary, "mean percentage", r.Summary.Mean)
		s.row(SheetSummary, "median percentage", r.Summary.Median)
		s.row(SheetSummary, "std dev", r.Summary.StdDev)
		s.row(SheetSummary, "min percentage", r.Summary.Min)
		s.row(SheetSummary, "max percentage", r.Summary.Max)
	}
}

func (s *sheetWriter) dimensions(session *scorecard.SessionScore) {
	s.headerRow(SheetDimensions, "dimension", "signal", "points", "earned", "score", "max")
	if session == nil {
		return
	}
	for _, d := range session.Dimensions {
		s.row(SheetDimensions, d.Name, "", "", "", d.Score, d.Max)
		for _, sig := range d.Signals {
			s.row(SheetDimensions, d.Name, sig.Name, sig.Points, sig.Earned)
		}
	}
}

func (s *sheetWriter) contributions(list []ScoredContribution) {
	s.headerRow(SheetContributions, "contribution", "role", "total", "max", "percentage", "valid", "gate failures", "warnings")
	for _, c := range list {
		gates := make([]string, len(c.Score.GateFailures))
		for i, g := range c.Score.GateFailures {
			gates[i] = g.Gate + ": " + g.Reason
		}
		s.row(SheetContributions, c.Name, string(c.Score.Role), c.Score.Total, c.Score.Max,
			c.Score.Percentage, c.Score.Valid, strings.Join(gates, "\n"), strings.Join(c.Score.Warnings, "\n"))
	}
}

func (s *sheetWriter) scores(list []ScoredContribution) {
	s.headerRow(SheetScores, ColContribution, ColRole, ColCriterion, ColScore, ColAnchors, ColClaimsKill, ColMissingPotencyCheck)
	for _, c := range list {
		criteria := make([]string, 0, len(c.Contribution.Scores))
		for name := range c.Contribution.Scores {
			criteria = append(criteria, name)
		}
		sort.Strings(criteria)

		anchors := make([]string, len(c.Contribution.Anchors))
		for i, a := range c.Contribution.Anchors {
			anchors[i] = a.String()
		}

		if len(criteria) == 0 {
			s.row(SheetScores, c.Name, string(c.Contribution.Role), "", "", strings.Join(anchors, ";"),
				c.Contribution.ClaimsKill, c.Contribution.MissingPotencyCheck)
			continue
		}
		for i, name := range criteria {
			// contribution-level fields go on the first row only
			if i == 0 {
				s.row(SheetScores, c.Name, string(c.Contribution.Role), name, c.Contribution.Scores[name],
					strings.Join(anchors, ";"), c.Contribution.ClaimsKill, c.Contribution.MissingPotencyCheck)
				continue
			}
			s.row(SheetScores, c.Name, string(c.Contribution.Role), name, c.Contribution.Scores[name])
		}
	}
}
