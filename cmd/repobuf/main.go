// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/repobuf/cmd/repobuf/cmd"
)

func main() {
	cmd.Execute()
}
