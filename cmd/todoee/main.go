// Package main implements the todoee CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/todoee/todoee/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Error("Error:"), err)
		os.Exit(1)
	}
}

// run executes one invocation. Empty-state outcomes such as nothing to
// undo or an offline sync are reported by the commands themselves and
// return nil.
func run(ctx context.Context, args []string) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
