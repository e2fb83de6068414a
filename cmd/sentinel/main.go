// Command sentinel runs the security telemetry engine behind its admin API and
// offers offline verification of the audit trail.
package main

import "github.com/MrEthical07/goSentinel/cmd/sentinel/commands"

func main() {
	commands.Execute()
}
