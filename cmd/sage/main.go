// Command sage indexes a directory of tabletop-game rules and answers
// questions about them using retrieval-augmented generation.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
