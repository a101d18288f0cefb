package main

import "github.com/fleetops/herald/internal/cli"

func main() {
	cli.Execute()
}
