package chat

import "time"

// SetStoreClock replaces the clock a Store stamps messages with.
func SetStoreClock(s *Store, now func() time.Time) { s.now = now }
