package main

import "tscommunity/cmd/tscommunity-cli/cmd"

func main() {
	cmd.Execute()
}
