package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l3aro/phpflow/pkg/dfg"
)

var dfgCmd = &cobra.Command{
	Use:   "dfg <file> <callable>",
	Short: "Print the data flow graph of a callable",
	Long: `Prints the definition-use graph of one PHP callable.

Callables are named as "phpflow callables" lists them: "name" for functions,
"Class::method" for methods, "{closure}@12" or "{arrow}@12" for anonymous
functions starting on line 12. Outputs varRefs, dataflowEdges and variables.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		callableName := args[1]

		info, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat file: %w", err)
		}

		if info.IsDir() {
			return fmt.Errorf("path is a directory, expected a file: %s", filePath)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := checkExtension(cfg, filePath); err != nil {
			return err
		}

		dfgInfo, err := dfg.ExtractDFG(filePath, callableName)
		if err != nil {
			if errors.Is(err, dfg.ErrCallableNotFound) {
				return fmt.Errorf("callable %q not found in %s", callableName, filePath)
			}
			return fmt.Errorf("extracting DFG: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		if jsonOutput {
			data, err := json.MarshalIndent(dfgInfo, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
		} else {
			printDFGInfo(out, dfgInfo)
		}

		return nil
	},
}

func printDFGInfo(w io.Writer, info *dfg.DFGInfo) {
	fmt.Fprintf(w, "=== DFG for callable: %s ===\n", info.FunctionName)
	if info.Dynamic {
		fmt.Fprintln(w, "(dynamic scope: variables may be created or read by name at runtime)")
	}

	names := make([]string, 0, len(info.Variables))
	for name := range info.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\nVariables (%d):\n", len(names))
	for _, name := range names {
		if flags := info.Flags[name]; flags != "" {
			fmt.Fprintf(w, "  $%s [%s]:\n", name, flags)
		} else {
			fmt.Fprintf(w, "  $%s:\n", name)
		}
		for _, ref := range info.Variables[name] {
			if ref.Kind != "" {
				fmt.Fprintf(w, "    - %s %s (line %d, col %d)\n", ref.RefType, ref.Kind, ref.Line, ref.Column)
				continue
			}
			fmt.Fprintf(w, "    - %s (line %d, col %d)\n", ref.RefType, ref.Line, ref.Column)
		}
	}

	fmt.Fprintf(w, "\nData Flow Edges (%d):\n", len(info.DataflowEdges))
	for _, edge := range info.DataflowEdges {
		fmt.Fprintf(w, "  $%s: def(line %d) -> use(line %d)\n",
			edge.VarName, edge.DefRef.Line, edge.UseRef.Line)
	}
}

func init() {
	dfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(dfgCmd)
}
