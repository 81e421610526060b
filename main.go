// The main package for the post-scraper executable.
package main

import (
	"github.com/JakeFAU/post-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
