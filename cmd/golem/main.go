// Command golem inspects and edits documents in a configured store.
package main

import (
	"fmt"
	"os"

	"github.com/leandroluk/golem/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "golem:", err)
		os.Exit(1)
	}
}
