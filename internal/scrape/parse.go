package scrape

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/malosaaa/p2000mon/internal/models"
)

// ErrStructureChanged signals that the page no longer looks like a region
// listing at all. Callers treat it as a failed poll, not as an empty region.
var ErrStructureChanged = errors.New("page structure changed")

// ParseResult is the outcome of parsing one region page. Records are in page
// order, newest first. Blocks that were present but could not be extracted are
// counted in Skipped with a note per block in Anomalies.
type ParseResult struct {
	Records   []models.MessageRecord
	Blocks    int
	Skipped   int
	Anomalies []string
}

// Parse extracts emergency messages from a region page. It returns
// ErrStructureChanged when the expected markup is missing entirely or no
// block yields a usable record.
func Parse(htmlBody string) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructureChanged, err)
	}

	container := doc.Find("#calls")
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: missing #calls container", ErrStructureChanged)
	}

	blocks := container.Find(".call")
	if blocks.Length() == 0 {
		return nil, fmt.Errorf("%w: no call blocks under #calls", ErrStructureChanged)
	}

	res := &ParseResult{Blocks: blocks.Length()}
	blocks.Each(func(i int, sel *goquery.Selection) {
		rec, missing := parseBlock(sel)
		if len(missing) > 0 {
			res.Skipped++
			res.Anomalies = append(res.Anomalies, fmt.Sprintf("block %d: missing %s", i, strings.Join(missing, ", ")))
			return
		}
		res.Records = append(res.Records, rec)
	})

	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%w: none of %d call blocks parse", ErrStructureChanged, res.Blocks)
	}
	return res, nil
}

// parseBlock pulls one message out of a .call div. The returned slice names
// the required fields the block is missing; when non-empty the record is
// unusable.
func parseBlock(sel *goquery.Selection) (models.MessageRecord, []string) {
	var rec models.MessageRecord
	var missing []string

	rec.PriorityCode = text(sel.Find("h2 > a > b"))
	if rec.PriorityCode == "" {
		missing = append(missing, "priority code")
	}

	rec.Description = text(sel.Find("pre"))
	if rec.Description == "" {
		missing = append(missing, "message body")
	}

	timeSpan := sel.Find("h2 > span").First()
	rec.RawTime = text(timeSpan)
	rec.AbsoluteTime = strings.TrimSpace(timeSpan.AttrOr("title", ""))
	if ts, err := ParseDutchTime(rec.AbsoluteTime); err == nil {
		rec.Timestamp = ts
	} else {
		missing = append(missing, "timestamp")
	}

	// Location details live in the second paragraph: region, city and postal
	// code are spans inside successive anchors, the street is a bare span.
	locP := sel.Find("span > p:nth-child(2)").First()
	rec.Region = text(locP.Find("a:nth-child(1) > span"))
	if rec.Region == "" {
		missing = append(missing, "region")
	}
	rec.Location = text(locP.Find("a:nth-child(2) > span"))
	if rec.Location == "" {
		missing = append(missing, "location")
	}
	rec.Street = text(locP.ChildrenFiltered("span"))
	rec.PostalCode = text(locP.Find("a:nth-child(3) > span"))

	rec.Latitude = floatAttr(sel, "latitude")
	rec.Longitude = floatAttr(sel, "longitude")

	return rec, missing
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

func floatAttr(sel *goquery.Selection, name string) *float64 {
	v, ok := sel.Attr(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &f
}
