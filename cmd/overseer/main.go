package main

import (
	"github.com/jmharte/overseer/internal/cli"
	"github.com/jmharte/overseer/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
