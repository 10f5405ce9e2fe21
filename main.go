// The main package for the sec-crawler executable.
package main

import (
	"github.com/fdwk/sec-crawler/cmd"
)

func main() {
	cmd.Execute()
}
