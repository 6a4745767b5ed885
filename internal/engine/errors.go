package engine

import (
	"fmt"
	"time"
)

// Operations a PixelError can originate from.
const (
	OpLoad    = "load"
	OpFit     = "fit"
	OpMonitor = "monitor"
)

// PixelError reports a failure confined to one pixel of a run.
type PixelError struct {
	Monitor string
	PixelID string
	From    time.Time
	To      time.Time
	Op      string
	Err     error
}

func (e *PixelError) Error() string {
	return fmt.Sprintf("monitor %s pixel %s [%s, %s]: %s: %v",
		e.Monitor, e.PixelID, e.From.Format(time.DateOnly), e.To.Format(time.DateOnly), e.Op, e.Err)
}

func (e *PixelError) Unwrap() error {
	return e.Err
}
