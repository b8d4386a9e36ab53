package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/malosaaa/p2000mon/internal/models"
)

// keywordGroups map Dutch service keywords to service types. Order matters:
// the first group with a hit wins, so a message naming both fire brigade and
// police is classified as Fire.
var keywordGroups = []struct {
	service  models.ServiceType
	keywords []string
}{
	{models.ServiceAmbulance, []string{"ambulance", "ambu"}},
	{models.ServiceFire, []string{"brandweer", "brand"}},
	{models.ServicePolice, []string{"politie"}},
}

// fold lowercases s and strips diacritics so keyword matching is insensitive
// to case and accents.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// Classify determines which emergency service a record belongs to from its
// priority code and message body.
func Classify(rec models.MessageRecord) models.ServiceType {
	hay := fold(rec.PriorityCode + " " + rec.Description)
	for _, g := range keywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(hay, kw) {
				return g.service
			}
		}
	}
	return models.ServiceOther
}

// Annotate fills in the service type on every record in place.
func Annotate(records []models.MessageRecord) {
	for i := range records {
		records[i].ServiceType = Classify(records[i])
	}
}
