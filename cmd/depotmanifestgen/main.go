package main

import "github.com/detiam/DepotManifestGen/internal/cli"

func main() {
	cli.Execute()
}
