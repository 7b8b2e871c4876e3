package storage

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

var lastID int64

// maxSafeID is the largest integer a JSON number survives in a browser.
const maxSafeID = 1<<53 - 1

// nextID returns a strictly increasing id seeded from the wall clock in
// microseconds, so ids issued by one process never repeat, sort in creation
// order and stay below maxSafeID for the next two centuries.
func nextID() int64 {
	for {
		now := time.Now().UnixMicro()
		last := atomic.LoadInt64(&lastID)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastID, last, now) {
			return now
		}
	}
}

// rowKey pads ids so lexical RowKey order matches numeric order.
func rowKey(id int64) string {
	return fmt.Sprintf("%019d", id)
}

func parseRowKey(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("row key %q: %w", key, err)
	}
	return id, nil
}

func formatRef(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func parseRef(v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("reference %q: %w", v, err)
	}
	return &id, nil
}
