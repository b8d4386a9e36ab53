package classify

import "github.com/malosaaa/p2000mon/internal/models"

// Select picks the newest record whose service type passes the filter.
// Records must already be annotated and ordered newest first. When no record
// matches, the newest record is returned anyway with matched false, so
// consumers keep seeing the latest regional activity alongside the signal
// that it is not what they asked for. An empty filter passes everything.
func Select(records []models.MessageRecord, filter models.FilterConfig) (*models.MessageRecord, bool) {
	if len(records) == 0 {
		return nil, false
	}
	if !filter.Empty() {
		for i := range records {
			if filter.Allows(records[i].ServiceType) {
				rec := records[i]
				return &rec, true
			}
		}
		newest := records[0]
		return &newest, false
	}
	newest := records[0]
	return &newest, true
}
