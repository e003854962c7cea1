package main

import "station-core/cmd/station-cli/cmd"

func main() {
	cmd.Execute()
}
