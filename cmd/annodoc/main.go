// annodoc extracts documentation entities from annotated source comments.
package main

import (
	"fmt"
	"os"

	"github.com/dgallion1/annodoc/cmd/annodoc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
