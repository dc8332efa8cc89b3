package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercora/backend/internal/catalog"
	"mercora/backend/internal/docstore"
	"mercora/backend/internal/document"
)

func newRenderCmd() *cobra.Command {
	var (
		productsPath string
		articlesPath string
		outDir       string
		summaryChars int
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render catalog CSV files to markdown documents",
		Long: `Reads products (and optionally articles) from CSV and writes one markdown
document per record under the output directory, using the same layout the
indexer stores.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := catalog.NewCSVSource(productsPath, articlesPath)
			out, err := docstore.NewFileStore(outDir)
			if err != nil {
				return err
			}
			renderer := document.NewRenderer(summaryChars)
			ctx := cmd.Context()

			var sources []catalog.Source
			products, productErrs, err := src.ListProducts(ctx)
			if err != nil {
				return fmt.Errorf("read products: %w", err)
			}
			for i := range products {
				sources = append(sources, &products[i])
			}
			articles, articleErrs, err := src.ListArticles(ctx)
			if err != nil {
				return fmt.Errorf("read articles: %w", err)
			}
			for i := range articles {
				sources = append(sources, &articles[i])
			}

			written, skipped := 0, 0
			for _, rowErr := range append(productErrs, articleErrs...) {
				cmd.PrintErrf("skipped %v\n", rowErr)
				skipped++
			}
			for _, s := range sources {
				doc, err := renderer.Render(s)
				if errors.Is(err, document.ErrInsufficientContent) {
					cmd.PrintErrf("skipped %v\n", err)
					skipped++
					continue
				}
				if err != nil {
					return err
				}
				if err := out.Put(ctx, doc.Key, []byte(doc.Body)); err != nil {
					return fmt.Errorf("write %s: %w", doc.Key, err)
				}
				written++
			}
			cmd.Printf("Rendered %d documents to %s (%d skipped)\n", written, outDir, skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&productsPath, "csv", "products.csv", "products CSV file")
	cmd.Flags().StringVar(&articlesPath, "articles", "", "articles CSV file")
	cmd.Flags().StringVarP(&outDir, "out", "o", "products_md", "output directory")
	cmd.Flags().IntVar(&summaryChars, "summary-chars", document.DefaultSummaryChars, "summary length in characters")
	return cmd
}
