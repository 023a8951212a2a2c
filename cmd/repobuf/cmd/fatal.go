// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// used to patch over calls to os.Exit() during test
var osExit = os.Exit

func wrapFatalln(msg string, err error) {
	if err == nil {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString(msg))
	} else {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString("%s: %v", msg, err))
	}
	osExit(1)
}
