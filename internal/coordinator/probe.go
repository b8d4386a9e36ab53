package coordinator

import (
	"context"

	"github.com/malosaaa/p2000mon/internal/classify"
	"github.com/malosaaa/p2000mon/internal/models"
	"github.com/malosaaa/p2000mon/internal/scrape"
)

// Probe runs a one-off fetch and parse of a region path without touching any
// coordinator. It is used to validate a region path before it goes into the
// config file, and returns the newest message as proof the page is readable.
func Probe(ctx context.Context, fetcher *scrape.Fetcher, regionPath string) (*models.MessageRecord, error) {
	body, err := fetcher.Fetch(ctx, regionPath)
	if err != nil {
		return nil, err
	}

	res, err := scrape.Parse(body)
	if err != nil {
		return nil, err
	}

	classify.Annotate(res.Records)
	newest := res.Records[0]
	return &newest, nil
}
