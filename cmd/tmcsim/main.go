// Command tmcsim runs and drives simulated USBTMC PL-bridge instruments.
package main

import "github.com/ardnew/softtmc/cmd/tmcsim/cmd"

func main() {
	cmd.Execute()
}
