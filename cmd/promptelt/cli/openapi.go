package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptelt/promptelt/internal/model"
	"github.com/promptelt/promptelt/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi [database]",
		Short: "Generate an OpenAPI document",
		Long: `Without arguments, print the OpenAPI 3 document of the promptelt REST API.
With a database name or id, connect to it and print a document describing its
tables as resources.`,
		Example: `  promptelt openapi                  # the promptelt API
  promptelt openapi warehouse -o warehouse.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) > 0 {
				ref = args[0]
			}
			return runOpenAPI(ref, baseURL, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the document to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "/api", "Server URL recorded in the document")

	return cmd
}

func runOpenAPI(ref, baseURL, outputFile string) error {
	out, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	if ref == "" {
		return printJSON(out, openapi.APISpec(baseURL, versionString()))
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	db, _, err := a.connectRef(ctx, ref)
	if err != nil {
		return err
	}
	resp := a.broker.GetSchema(ctx, db.ID, false)
	if !resp.Success {
		return fmt.Errorf("introspect %q: %s", db.Name, resp.Error)
	}
	schema, ok := resp.Data.(model.SchemaInfo)
	if !ok {
		return fmt.Errorf("introspect %q: unexpected payload %T", db.Name, resp.Data)
	}
	if err := printJSON(out, openapi.DatabaseSpec(*db, schema, baseURL)); err != nil {
		return err
	}
	if outputFile != "" {
		fmt.Printf("Wrote OpenAPI document for %q to %s\n", db.Name, outputFile)
	}
	return nil
}
