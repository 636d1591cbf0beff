package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/techmap/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the technology name registry",
}

var registryCheckCmd = &cobra.Command{
	Use:   "check [definition.yaml]",
	Short: "Validate a registry definition",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Registry.Path
		if len(args) == 1 {
			path = args[0]
		}

		reg, err := registry.LoadFile(path)
		if err != nil {
			return err
		}

		name := path
		if name == "" {
			name = "built-in registry"
		}
		fmt.Fprintf(os.Stdout, "%s: OK (%d families, %d exclusions, digest %s)\n",
			name, len(reg.Families()), len(reg.Exclusions()), reg.Digest()[:12])
		return nil
	},
}

var registryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print canonical families, component aliases and exclusions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		formatRegistry(os.Stdout, reg)
		return nil
	},
}

func init() {
	registryCmd.AddCommand(registryCheckCmd)
	registryCmd.AddCommand(registryShowCmd)
	rootCmd.AddCommand(registryCmd)
}

func loadRegistry() (*registry.Registry, error) {
	return registry.LoadFile(cfg.Registry.Path)
}

// formatRegistry writes the registry as two tables to out.
func formatRegistry(out io.Writer, reg *registry.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CANONICAL\tALIASES")
	_, _ = fmt.Fprintln(w, "---------\t-------")
	for _, f := range reg.Families() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", f.Name, strings.Join(f.Aliases, ", "))
		for _, s := range registry.ComponentSuffixes {
			if aliases, ok := f.Components[s]; ok && len(aliases) > 0 {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", f.Canonical(s), strings.Join(aliases, ", "))
			}
		}
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EXCLUDED PATTERN\tCATEGORY")
	_, _ = fmt.Fprintln(w, "----------------\t--------")
	for _, e := range reg.Exclusions() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Pattern, e.Category)
	}
	_ = w.Flush()
}
