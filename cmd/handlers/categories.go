package handlers

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/render"
)

// NewCategoriesCmd creates the categories command
func NewCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the categories and their keywords",
		Long: `Categories prints the taxonomy used for classification in priority order,
including overrides from categories.file. C6 is the catch-all and is never scored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategories(cmd.OutOrStdout())
		},
	}
}

func runCategories(out io.Writer) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	taxonomy, err := categorization.LoadTaxonomy(cfg.Categories.File)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, render.NewRenderer(taxonomy, nil).CategoryTable())
	return nil
}
