// The main package for the leadscout executable.
package main

import (
	"github.com/JakeFAU/leadscout/cmd"
)

func main() {
	cmd.Execute()
}
