package streaming

import (
	"bufio"
	"context"
	"time"
)

// Line is one upstream SSE line, or the scanner's terminal error.
type Line struct {
	Text string
	Err  error
}

// PumpLines drains the scanner on a dedicated goroutine so the consumer can
// race reads against a keepalive timer. The channel closes when the upstream
// stream ends; a terminal scanner error arrives as the last Line. Canceling
// ctx releases the goroutine even when the consumer stops receiving.
func PumpLines(ctx context.Context, scanner *bufio.Scanner) <-chan Line {
	ch := make(chan Line)
	go func() {
		defer close(ch)
		for scanner.Scan() {
			select {
			case ch <- Line{Text: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case ch <- Line{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

// Next returns the next upstream line, calling ping each time the keepalive
// interval elapses with the read still pending. The pending read is reused
// across pings; a second read never starts. ok is false when the stream has
// ended or ctx was canceled.
func Next(ctx context.Context, lines <-chan Line, interval time.Duration, ping func()) (line Line, ok bool) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case l, open := <-lines:
			return l, open
		case <-timer.C:
			if ping != nil {
				ping()
			}
			timer.Reset(interval)
		case <-ctx.Done():
			return Line{Err: ctx.Err()}, false
		}
	}
}
