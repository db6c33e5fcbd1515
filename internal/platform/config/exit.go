package config

import (
	"fmt"
	"log"
	"os"
)

// Exitf reports a startup failure on stderr, tagged with the standard
// logger's prefix, and exits with code 1. Use it before logging is set up.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s%s\n", log.Prefix(), fmt.Sprintf(format, args...))
	os.Exit(1)
}
