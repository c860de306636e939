// The main package for the atlas executable.
package main

import (
	"github.com/JakeFAU/atlas-jobs/cmd"
)

func main() {
	cmd.Execute()
}
