package must

import (
	"errors"
	"fmt"

	"github.com/xeptore/flaw/v8"
)

func BeFlaw(err error) *flaw.Flaw {
	if f := new(flaw.Flaw); errors.As(err, &f) {
		return f
	}
	panic(fmt.Sprintf("expected error to be of type *flaw.Flaw, got error of type %T: %v", err, err))
}

// AppendIfFlaw attaches p to err when err is a flaw and returns any other
// error, such as a context error, untouched.
func AppendIfFlaw(err error, p flaw.P) error {
	if f := new(flaw.Flaw); errors.As(err, &f) {
		return f.Append(p)
	}
	return err
}
