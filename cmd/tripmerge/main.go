package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/vvka-141/tripmerge/internal/cli"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(tripmerge.ExitPanic)
		}
	}()

	if os.Getenv("TRIPMERGE_TEST_PANIC") == "1" {
		panic("intentional test panic")
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(tripmerge.ExitCodeForError(err))
	}
}
