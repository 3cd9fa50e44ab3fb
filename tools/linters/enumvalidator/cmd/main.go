package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"musky.app/forecast/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
