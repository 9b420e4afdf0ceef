// The main package for the synapse executable.
package main

import (
	"github.com/JakeFAU/synapse-search/cmd"
)

func main() {
	cmd.Execute()
}
