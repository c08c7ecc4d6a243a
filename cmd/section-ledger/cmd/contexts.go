package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// contextsCmd represents the contexts command.
var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "List configured tenant contexts",
	Long: `List every tenant context built from the credential pool, sorted by
group and section. Tokens are never printed.

Example:
  section-ledger contexts`,
	Run: runContexts,
}

func runContexts(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	contexts, err := newRegistry(cfg).List()
	exitOnError(err, "failed to load tenant pool")

	if len(contexts) == 0 {
		fmt.Println("No contexts configured")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tGROUP\tSECTION\tBASE")
	for _, c := range contexts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Key, c.GroupLabel, c.SectionLabel, c.BaseID)
	}
	_ = w.Flush()
}
