// Command linkcup runs the linkCUP session gateway.
package main

import "github.com/teslashibe/go-linkcup/internal/cli"

func main() {
	cli.Execute()
}
