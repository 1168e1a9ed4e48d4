package main

import "github.com/dexcount/cmd/dexcount/cmd"

func main() {
	cmd.Execute()
}
