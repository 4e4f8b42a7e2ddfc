package checkout

import (
	"fmt"
	"time"
)

// FormatRemaining renders a countdown as MM:SS, clamping at 00:00.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "00:00"
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
