package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/mvp-joe/treewatch/internal/git"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Print the git status snapshot for a tree",
	Long: `Compute one git status snapshot for the repository containing path
and print the branch, ahead/behind counts against origin and every changed
path with its classification.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	provider, err := git.NewProvider(cfg.Git.Backend, git.Options{RecurseUntracked: cfg.Git.RecurseUntracked})
	if err != nil {
		return err
	}

	info, err := provider.Compute(cmd.Context(), root)
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return printStatus(cmd.OutOrStdout(), info)
}

func printStatus(w io.Writer, info *git.GitInfo) error {
	fmt.Fprintf(w, "Branch: %s\n", info.Branch)
	fmt.Fprintf(w, "Ahead:  %d\n", info.Ahead)
	fmt.Fprintf(w, "Behind: %d\n", info.Behind)
	if info.HasConflicts {
		fmt.Fprintln(w, "Conflicts: yes")
	}
	c := info.Counts()
	fmt.Fprintf(w, "Files:  %d modified, %d staged, %d untracked\n", c.Modified, c.Staged, c.Untracked)

	if len(info.FileStatuses) == 0 {
		_, err := fmt.Fprintln(w, "\nWorking tree clean")
		return err
	}

	paths := make([]string, 0, len(info.FileStatuses))
	for p := range info.FileStatuses {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fmt.Fprintln(w)
	for _, p := range paths {
		if _, err := fmt.Fprintf(w, "  %-10s %s\n", info.FileStatuses[p], p); err != nil {
			return err
		}
	}
	return nil
}
