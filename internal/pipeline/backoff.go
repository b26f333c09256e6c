package pipeline

import "time"

// backoffDelay computes min(cap, base * 2^attempt). Attempt zero yields the
// base delay; the result is non-decreasing in attempt until the cap.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if cap > 0 && delay > cap/2 {
			return cap
		}
		delay *= 2
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}
