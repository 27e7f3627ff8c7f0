package clientdata

import "time"

// Cache TTLs per table. Exchange rates move slowly; memoized aggregate
// metrics only need to survive bursts of repeated reads.
const (
	TTLExchangeRate = 1 * time.Hour
	TTLMetrics      = 60 * time.Second
	TTLCurrentPrice = 5 * time.Minute
)
