package excel

// RawRowData represents a row of raw sheet data keyed by header
type RawRowData map[string]string

// SheetData is a header row plus its data rows
type SheetData struct {
	Headers []string
	Rows    []RawRowData
}

// Column headers of a contribution score sheet
const (
	ColContribution        = "contribution"
	ColRole                = "role"
	ColCriterion           = "criterion"
	ColScore               = "score"
	ColAnchors             = "anchors"
	ColClaimsKill          = "claims_kill"
	ColMissingPotencyCheck = "missing_potency_check"
)

// Sheet names used by the scorecard workbook
const (
	SheetSummary       = "Summary"
	SheetDimensions    = "Dimensions"
	SheetContributions = "Contributions"
	SheetScores        = "Scores"
)
