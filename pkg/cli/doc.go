/*
Package cli provides command-line interface utilities for Sextant.

The cli package includes output formatters, tabular output, typed command
errors with exit codes, and signal helpers used by the sextant command.

Output Formatting:

The cli package supports text and JSON output for displaying command
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, records); err != nil {
		return err
	}

Aligned tabular output for record listings:

	cli.Table(os.Stdout,
		[]string{"ARM", "DECISIONS"},
		[][]string{{"gpt-4o-mini", "1041"}},
	)

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
