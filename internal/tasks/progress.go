// file: internal/tasks/progress.go
// version: 1.0.0
// guid: 585cf2e6-5d84-4cb1-88a9-917cf7e801e9

package tasks

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Progress is a point-in-time view of a transfer. Total is zero or negative
// while the size is still unknown.
type Progress struct {
	Transferred int64 `json:"transferred"`
	Total       int64 `json:"total"`
}

// Percent returns the integer completion percentage, clamped to [0, 100].
func (p Progress) Percent() int {
	if p.Total <= 0 || p.Transferred <= 0 {
		return 0
	}
	pct := p.Transferred * 100 / p.Total
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// String renders the progress for status consumers, e.g. "42%".
func (p Progress) String() string {
	return fmt.Sprintf("%d%%", p.Percent())
}

// Describe renders byte counts with locale grouping, e.g. "1,024 / 2,048 bytes".
func (p Progress) Describe() string {
	if p.Total <= 0 {
		return printer.Sprintf("%d bytes", p.Transferred)
	}
	return printer.Sprintf("%d / %d bytes", p.Transferred, p.Total)
}
