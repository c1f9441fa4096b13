// Command qrattend encodes, scans and records QR attendance tokens.
package main

import (
	"os"

	"github.com/mdlavlusheikh1/demoschool-sub009/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewRootCommand(), os.Args[1:]))
}
