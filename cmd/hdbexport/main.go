// Command hdbexport runs SQL against SAP HANA and exports the result.
package main

import (
	"os"

	"github.com/koustreak/hdbexport/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
