// Package goroutineid identifies the calling goroutine, so code can tell
// whether it is already running on the script event loop.
package goroutineid

import (
	"bytes"
	"runtime"
	"sync"
)

// the header line is all that is read; runtime.Stack truncates the rest
var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Get returns the current goroutine's id, or 0 if it cannot be read.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse reads the id from a "goroutine N [status]:" header.
func parse(stack []byte) int64 {
	rest, ok := bytes.CutPrefix(stack, []byte("goroutine "))
	if !ok {
		return 0
	}
	var id int64
	for _, b := range rest {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
	}
	return id
}
