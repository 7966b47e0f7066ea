// Package main is the single-binary entrypoint for apuctl.
package main

import "github.com/apuctl/apuctl/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
