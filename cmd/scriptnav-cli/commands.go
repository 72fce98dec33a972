package main

import (
	"fmt"
	"strings"

	"github.com/kr/pretty"
	"github.com/shehackedyou/scriptnav"
	"github.com/spf13/cobra"
)

// =============================================================================
// signature
// =============================================================================

var signaturePos positionFlags

var signatureCmd = &cobra.Command{
	Use:   "signature <file>",
	Short: "Show the call enclosing a position and the active argument",
	Long: `Show the call whose argument list holds the position, the zero-based
argument index and the syntactic definitions found for the callee.

Examples:
  scriptnav-cli signature app.py --line 12 --col 18`,
	Args: cobra.ExactArgs(1),
	RunE: runSignature,
}

func runSignature(cmd *cobra.Command, args []string) error {
	pos, err := signaturePos.pos()
	if err != nil {
		return err
	}
	path, src, err := readSource(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := queryContext()
	defer cancel()

	sig, err := navigator.SignatureAt(ctx, path, src, pos)
	if sig == nil {
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "no call at position")
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "callee: %s\nindex: %d\n", sig.Callee, sig.Index)
	for _, d := range sig.Definitions {
		fmt.Fprintf(out, "  %s  %s:%d\n", d.Label(), d.Path, d.Start.Line+1)
	}
	return err
}

// =============================================================================
// complete
// =============================================================================

var completePos positionFlags

var completeCmd = &cobra.Command{
	Use:   "complete <file>",
	Short: "List names bound in the file matching the identifier before a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

func runComplete(cmd *cobra.Command, args []string) error {
	pos, err := completePos.pos()
	if err != nil {
		return err
	}
	path, src, err := readSource(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := queryContext()
	defer cancel()

	completions, err := navigator.CompletionsAt(ctx, path, src, pos)
	if err != nil {
		return err
	}
	for _, c := range completions {
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", c.Kind, c.Label)
	}
	return nil
}

// =============================================================================
// definition
// =============================================================================

var definitionPos positionFlags

var definitionCmd = &cobra.Command{
	Use:   "definition <file>",
	Short: "Find the def statements for the name at a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runDefinition,
}

func runDefinition(cmd *cobra.Command, args []string) error {
	pos, err := definitionPos.pos()
	if err != nil {
		return err
	}
	path, src, err := readSource(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := queryContext()
	defer cancel()

	defs, err := navigator.DefinitionsAt(ctx, path, src, pos)
	for _, d := range defs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%d:%d: %s\n", d.Path, d.Start.Line+1, d.Start.Column+1, d.Label())
	}
	return err
}

// =============================================================================
// hover
// =============================================================================

var hoverPos positionFlags

var hoverCmd = &cobra.Command{
	Use:   "hover <file>",
	Short: "Show the hover text for the name at a position",
	Args:  cobra.ExactArgs(1),
	RunE:  runHover,
}

func runHover(cmd *cobra.Command, args []string) error {
	pos, err := hoverPos.pos()
	if err != nil {
		return err
	}
	path, src, err := readSource(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := queryContext()
	defer cancel()

	info, err := navigator.HoverAt(ctx, path, src, pos)
	if info != nil {
		fmt.Fprintln(cmd.OutOrStdout(), info.Text)
	}
	return err
}

// =============================================================================
// check
// =============================================================================

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Report unclosed brackets and unresolvable imports",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := queryContext()
	defer cancel()

	total := 0
	for _, arg := range args {
		path, src, err := readSource(arg)
		if err != nil {
			return err
		}
		diags, err := navigator.Diagnostics(ctx, path, src)
		if err != nil {
			return err
		}
		for _, d := range diags {
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%d:%d: %s %s\n", path, d.Range.Start.Line+1, d.Range.Start.Column+1, d.Code, d.Message)
		}
		total += len(diags)
	}
	if total > 0 {
		return fmt.Errorf("%d problem(s) found", total)
	}
	return nil
}

// =============================================================================
// tree
// =============================================================================

var treeStatement positionFlags

var treeCmd = &cobra.Command{
	Use:   "tree <file>",
	Short: "Dump the syntax tree of a file, or of the statement at --line",
	Args:  cobra.ExactArgs(1),
	RunE:  runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	path, src, err := readSource(args[0])
	if err != nil {
		return err
	}
	mod := navigator.ParseDocument(path, src)
	var root scriptnav.Node = mod
	if treeStatement.line > 0 {
		col := treeStatement.col
		if col <= 0 {
			col = 1
		}
		st := scriptnav.StatementAt(mod, scriptnav.Pos{Line: treeStatement.line - 1, Column: col - 1})
		if st == nil {
			return fmt.Errorf("%w: no statement at line %d", scriptnav.ErrPositionOutOfRange, treeStatement.line)
		}
		root = st
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%# v\n", pretty.Formatter(scriptnav.Dump(root)))
	return nil
}

// =============================================================================
// search
// =============================================================================

var searchCmd = &cobra.Command{
	Use:   "search <name> <file>",
	Short: "List the modules that may mention a name, starting from a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	path, src, err := readSource(args[1])
	if err != nil {
		return err
	}
	ctx, cancel := queryContext()
	defer cancel()

	mod := navigator.ParseDocument(path, src)
	mods, err := navigator.ModulesContainingName(ctx, []*scriptnav.Module{mod}, name)
	for _, m := range mods {
		fmt.Fprintln(cmd.OutOrStdout(), m.Path)
	}
	return err
}

func init() {
	signaturePos.register(signatureCmd)
	completePos.register(completeCmd)
	definitionPos.register(definitionCmd)
	hoverPos.register(hoverCmd)
	treeCmd.Flags().IntVar(&treeStatement.line, "line", 0, "Dump only the statement at this line (1-based)")
	treeCmd.Flags().IntVar(&treeStatement.col, "col", 0, "Column within --line (1-based)")

	rootCmd.AddCommand(signatureCmd, completeCmd, definitionCmd, hoverCmd, checkCmd, treeCmd, searchCmd)
}
