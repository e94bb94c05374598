package main

import (
	"github.com/BioHazard786/Huddle/cli/cmd"
)

func main() {
	cmd.Execute()
}
