package repository

import (
	"strconv"

	"gradex/internal/grader/verdict"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// verdictFromString converts a stored verdict column, tolerating legacy
// empty values from rows written before grading finished.
func verdictFromString(s string) verdict.Verdict {
	v := verdict.Verdict(s)
	if !v.Valid() {
		return ""
	}
	return v
}
