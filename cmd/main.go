package main

import (
	_ "embed"
	"os"

	"github.com/hdt3213/tabledis/servercli"
)

//go:embed banner.txt
var banner string

func main() {
	servercli.Banner = banner
	if err := servercli.Execute(); err != nil {
		os.Exit(1)
	}
}
