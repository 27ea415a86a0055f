// driftmd monitors a stream of classifier inputs for concept drift by
// tracking margin density against a calibrated acceptable range.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "driftmd:", err)
		os.Exit(1)
	}
}
