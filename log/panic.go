package log

import (
	"bytes"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Panic records a recovered value with the stack of the recovering
// goroutine, skipping the frames of the recovery itself.
func Panic(thing any) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		dict := zerolog.Dict().Any("content", thing).Str("type", fmt.Sprintf("%T", thing))
		stack := debug.Stack()
		lines := bytes.Split(stack, []byte("\n"))
		if len(lines) > 9 {
			lines = lines[9:]
		}
		dict.Bytes("stack_traces", bytes.Join(lines, []byte("\n")))
		e.Dict("panic", dict)
	}
}
