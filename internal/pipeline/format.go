package pipeline

import (
	"fmt"
	"time"
)

// FormatSeconds renders d as seconds with one decimal place ("2.5s").
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
