package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/dispatch/internal/demotools"
	"github.com/harun/dispatch/pkg/toolregistry"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	Long: `List every tool the engine registers, with its side-effect class.
Read-only tools run concurrently; mutating and destructive tools run
exclusively and require approval before executing.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print descriptors as JSON")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	registry := toolregistry.New()
	if err := demotools.Register(registry); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	descriptors := registry.List()
	out := cmd.OutOrStdout()

	if toolsJSON {
		data, err := json.MarshalIndent(descriptors, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode descriptors: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "%-14s %-12s %-10s %s\n", "NAME", "SIDE-EFFECT", "EXCLUSIVE", "DESCRIPTION")
	for _, desc := range descriptors {
		exclusive := "no"
		if desc.SideEffect.Exclusive() {
			exclusive = "yes"
		}
		fmt.Fprintf(out, "%-14s %-12s %-10s %s\n", desc.Name, desc.SideEffect, exclusive, desc.Description)
	}
	return nil
}
