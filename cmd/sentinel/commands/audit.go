package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSentinel/audit"
)

// errIntegrity makes the process exit non-zero when verification finds damage.
var errIntegrity = errors.New("integrity check failed")

var verifyCmd = &cobra.Command{
	Use:   "verify [event-id]",
	Short: "Compare stored audit events with their ledger anchors",
	Long: `Verify one event by id, or the newest events with --recent.

The command needs persistent backends (audit.store: sqlite and ledger.backend:
leveldb) to see events recorded by a running server. It exits non-zero when an
event is tampered or missing from the ledger.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the anchor ledger",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the anchor chain and report the first broken link",
	Args:  cobra.NoArgs,
	RunE:  runLedgerVerify,
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print anchor counts and the chain head",
	Args:  cobra.NoArgs,
	RunE:  runLedgerStats,
}

func init() {
	verifyCmd.Flags().Int("recent", 0, "verify the newest N events instead of one id")
	ledgerCmd.AddCommand(ledgerVerifyCmd, ledgerStatsCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	recent, _ := cmd.Flags().GetInt("recent")
	if (len(args) == 0) == (recent <= 0) {
		return errors.New("pass exactly one of an event id or --recent N")
	}

	_, _, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	out := cmd.OutOrStdout()
	if recent > 0 {
		sum, err := engine.VerifyRecent(cmd.Context(), recent)
		if err != nil {
			return err
		}
		if err := printJSON(out, sum); err != nil {
			return err
		}
		if sum.Tampered > 0 {
			return fmt.Errorf("%w: %d tampered", errIntegrity, sum.Tampered)
		}
		return nil
	}

	v, err := engine.VerifyIntegrity(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := printJSON(out, v); err != nil {
		return err
	}
	if v.Status != audit.Verified {
		return fmt.Errorf("%w: %s", errIntegrity, v.Status)
	}
	return nil
}

func runLedgerVerify(cmd *cobra.Command, _ []string) error {
	_, _, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.VerifyLedger(cmd.Context())
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("%w: chain broken at %d", errIntegrity, report.BrokenAt)
	}
	return nil
}

func runLedgerStats(cmd *cobra.Command, _ []string) error {
	_, _, engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.LedgerStats(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}
