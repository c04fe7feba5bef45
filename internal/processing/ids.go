package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bakkal-monitor/price-radar/internal/models"
)

// ObservedDate returns the calendar day (UTC) an observation belongs to.
func ObservedDate(ts time.Time) string {
	return ts.UTC().Format(models.DateLayout)
}

// BuildObservationID derives the storage id for a (url, day) pair, so a
// same-day rerun overwrites instead of duplicating.
func BuildObservationID(productURL, observedDate string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(productURL)))
	h.Write([]byte("|"))
	h.Write([]byte(observedDate))
	return hex.EncodeToString(h.Sum(nil))
}
