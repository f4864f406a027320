package main

import "github.com/contesthub/contesthub/cmd/contesthub-cli/cmd"

func main() {
	cmd.Execute()
}
