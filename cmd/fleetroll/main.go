// Command fleetroll performs graceful, zone-aware rollover and scale-down
// of container-host fleets behind a managed scheduler and an AWS
// Auto Scaling Group.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
