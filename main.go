package main

import "github.com/relloyd/etl-engine/cmd"

func main() {
	cmd.Execute()
}
