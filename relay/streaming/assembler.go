// Package streaming holds the transport plumbing shared by streaming relay
// handlers: the incremental JSON assembler and the SSE keepalive pump.
package streaming

import "bytes"

const (
	// fullScanLimit is the buffer size above which the assembler switches
	// from an exact scan to the two-ended approximation.
	fullScanLimit = 100 * 1024
	// edgeScanWindow bounds each end of the approximate scan.
	edgeScanWindow = 8 * 1024
)

// Assembler accumulates SSE payload fragments until they form a parseable
// JSON document. Some providers split a single JSON object across many SSE
// events, notably base64 image payloads.
type Assembler struct {
	buf bytes.Buffer
}

// Append adds a fragment to the pending buffer.
func (a *Assembler) Append(fragment []byte) {
	a.buf.Write(fragment)
}

// Bytes returns the pending buffer without copying.
func (a *Assembler) Bytes() []byte {
	return a.buf.Bytes()
}

// Reset discards the pending buffer after a successful parse.
func (a *Assembler) Reset() {
	a.buf.Reset()
}

// Ready reports whether the pending buffer might parse as JSON. Callers must
// still run a real parse; on large buffers this is only a necessary
// condition.
func (a *Assembler) Ready() bool {
	return MightBeCompleteJSON(a.buf.Bytes())
}

// MightBeCompleteJSON reports whether buf could be a complete JSON document.
// Small buffers get an exact structural scan; buffers over 100 KB get a
// bounded scan of 8 KB from each end, assuming the middle is a single long
// string literal.
func MightBeCompleteJSON(buf []byte) bool {
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) < 2 {
		return false
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	if !(first == '{' && last == '}') && !(first == '[' && last == ']') {
		return false
	}
	if len(trimmed) <= fullScanLimit {
		return fullBalanceScan(trimmed)
	}
	return edgeBalanceScan(trimmed)
}

// fullBalanceScan walks the whole buffer counting braces and brackets,
// skipping characters inside string literals.
func fullBalanceScan(buf []byte) bool {
	braces, brackets := 0, 0
	inString, escaped := false, false
	for _, b := range buf {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			braces++
		case '}':
			braces--
		case '[':
			brackets++
		case ']':
			brackets--
		}
		if braces < 0 || brackets < 0 {
			return false
		}
	}
	return braces == 0 && brackets == 0 && !inString
}

// edgeBalanceScan approximates balance for huge buffers: the forward scan
// accumulates net structural depth over the first window, the reverse scan
// net closing depth over the last window, and the middle is assumed to sit
// inside one long string. Balance holds when the two nets agree.
func edgeBalanceScan(buf []byte) bool {
	head := buf[:edgeScanWindow]
	tail := buf[len(buf)-edgeScanWindow:]

	forwardOpens := 0
	inString, escaped := false, false
	for _, b := range head {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			forwardOpens++
		case '}', ']':
			forwardOpens--
		}
	}

	reverseCloses := 0
	inString = false
	for i := len(tail) - 1; i >= 0; i-- {
		b := tail[i]
		if b == '"' && !isEscapedAt(tail, i) {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch b {
		case '}', ']':
			reverseCloses++
		case '{', '[':
			reverseCloses--
		}
	}

	return forwardOpens == reverseCloses
}

// isEscapedAt reports whether the quote at index i is escaped, by counting
// the run of backslashes immediately before it.
func isEscapedAt(buf []byte, i int) bool {
	backslashes := 0
	for j := i - 1; j >= 0 && buf[j] == '\\'; j-- {
		backslashes++
	}
	return backslashes%2 == 1
}
