package controllers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/internal/affiliates"
)

const affiliateCookiePrefix = "_affiliate_"

// affiliateSignals turns _affiliate_<id>=<unix seconds> cookies into
// resolver signals, most recently set first. Malformed cookies are ignored.
func affiliateSignals(cookies []*http.Cookie) []affiliates.Signal {
	signals := make([]affiliates.Signal, 0)
	seen := map[uuid.UUID]int{}
	for _, c := range cookies {
		if !strings.HasPrefix(c.Name, affiliateCookiePrefix) {
			continue
		}
		id, err := uuid.Parse(strings.TrimPrefix(c.Name, affiliateCookiePrefix))
		if err != nil {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSpace(c.Value), 10, 64)
		if err != nil || unix <= 0 {
			continue
		}
		setAt := time.Unix(unix, 0).UTC()
		if idx, ok := seen[id]; ok {
			if setAt.After(signals[idx].SetAt) {
				signals[idx].SetAt = setAt
			}
			continue
		}
		seen[id] = len(signals)
		signals = append(signals, affiliates.Signal{AffiliateID: id, SetAt: setAt})
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].SetAt.After(signals[j].SetAt)
	})
	return signals
}
