package reporting

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultOutputDir returns the conventional reports directory for an
// account, e.g. reports/ACC123_2026-08-30.
func DefaultOutputDir(accountID string, when time.Time) string {
	id := strings.TrimSpace(accountID)
	if id == "" {
		id = "UNKNOWN"
	}
	return filepath.Join("reports", fmt.Sprintf("%s_%s", id, when.Format("2006-01-02")))
}
