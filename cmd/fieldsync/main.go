package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/fieldsync/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := cli.NewRootCommand()
	err := root.Execute()
	if err == nil {
		return cli.ExitSuccess
	}

	fmt.Fprintln(os.Stderr, err)
	// Argument and flag errors from cobra carry no exit code.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		return cli.ExitCommandError
	}
	return exitErr.Code
}
