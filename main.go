package main

import (
	"github.com/lectern-sync/lectern/cmd"
	"github.com/lectern-sync/lectern/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
