package main

import "github.com/chaingraph/indexer/cmd/indexer/cmd"

func main() {
	cmd.Execute()
}
