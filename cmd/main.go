package main

import (
	"os"

	"github.com/skillmesh/skillgraph/cmd/skillgraph"
)

func main() {
	if err := skillgraph.Execute(); err != nil {
		os.Exit(1)
	}
}
