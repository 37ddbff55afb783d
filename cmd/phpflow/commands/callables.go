package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/l3aro/phpflow/pkg/dfg"
	"github.com/l3aro/phpflow/pkg/syntax"
)

var callablesCmd = &cobra.Command{
	Use:   "callables <file>",
	Short: "List the callables in a PHP file",
	Long: `Lists every function, method, closure and arrow function in a file,
in source order. Each one is analyzed with its own variable scope.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := checkExtension(cfg, args[0]); err != nil {
			return err
		}

		tree, err := syntax.ParseFile(args[0])
		if err != nil {
			return err
		}
		callables := dfg.Callables(tree)
		out := cmd.OutOrStdout()

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			type entry struct {
				Name string           `json:"name"`
				Kind dfg.CallableKind `json:"kind"`
				Line int              `json:"line"`
			}
			entries := make([]entry, 0, len(callables))
			for _, c := range callables {
				entries = append(entries, entry{Name: c.String(), Kind: c.Kind, Line: c.Line})
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LINE\tKIND\tNAME")
		for _, c := range callables {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", c.Line, c.Kind, c)
		}
		return tw.Flush()
	},
}

func init() {
	callablesCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(callablesCmd)
}
