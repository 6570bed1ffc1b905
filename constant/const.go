package constant

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
)

var (
	//go:embed version
	Version string
	// Set at build time with -ldflags "-X github.com/xeptore/qqres/constant.compileTime=...".
	compileTime string
	CompileTime time.Time
)

func init() {
	Version = strings.TrimSpace(Version)
	if compileTime == "" {
		CompileTime = time.Now().UTC().Truncate(time.Second)
		return
	}
	t, err := time.Parse(time.RFC3339, compileTime)
	if nil != err {
		panic(fmt.Errorf("could not parse CompileTime constant %q. Make sure it is set in RFC3339 format at build time", compileTime))
	}
	CompileTime = t
}
