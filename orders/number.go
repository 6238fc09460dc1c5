package orders

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// numberFunc yields order numbers; tests replace it to force collisions.
type numberFunc func(now time.Time) string

// newOrderNumber formats ORD-{yyyyMMddHHmmss}-{1000..9999} in UTC.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%d", now.UTC().Format("20060102150405"), 1000+rand.IntN(9000))
}
