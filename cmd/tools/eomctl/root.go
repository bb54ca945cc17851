package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-companion/backend/internal/analysis/eom"
)

// Version is set at build time.
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eomctl",
		Short: "Inspect and replay EOM-annotated replies",
		Long: `eomctl reads an agent reply containing <EOM::...> tags, either from the
arguments or from stdin, and shows how the backend would parse, split,
pace and play it.

Examples:
  eomctl parse "hey <EOM::pause=1500 emotion=shy> you"
  echo "hi <EOM::pause=800> there" | eomctl split
  eomctl plan --persona nova --intensity 3 "come here <EOM::pause=900> now"
  eomctl play --scale 0.5 "one <EOM::pause=1000> two"`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newParseCmd(), newSplitCmd(), newCleanCmd(), newPlanCmd(), newPlayCmd())
	return root
}

// readText joins args, or reads stdin when no argument was given.
func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no input: pass the reply as an argument or on stdin")
	}
	return text, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [reply]",
		Short: "Read the first tag of a reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), eom.Parse(text))
		},
	}
}

func newSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split [reply]",
		Short: "Split a reply into tagged segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), eom.SplitIntoParts(text))
		},
	}
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [reply]",
		Short: "Strip every tag from a reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), eom.Clean(text))
			return err
		},
	}
}
