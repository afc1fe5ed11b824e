package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/meigma/courier"
)

var (
	fetchJQ  string
	fetchRaw bool
)

var fetchCmd = &cobra.Command{
	Use:     "fetch <url>",
	Short:   "Fetch a payload and print it",
	GroupID: "transfer",
	Long: `Fetch GETs a URL and prints the response body.

With --jq the payload is decoded as JSON, or YAML when the server says so,
into a list of records: the elements of a top-level array, or a single
object as the only record. The jq expression runs over that list and each
result is printed as JSON.

Examples:
  courier fetch https://example.com/posts
  courier fetch https://example.com/posts --jq '.[].title' -r
  courier fetch https://example.com/config.yaml --jq '.[0].name'`,
	Args:              cobra.ExactArgs(1),
	RunE:              runFetch,
	ValidArgsFunction: completeURLArg,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchJQ, "jq", "", "jq expression applied to the decoded records")
	fetchCmd.Flags().BoolVarP(&fetchRaw, "raw-output", "r", false, "Print string results without quotes")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	var code *gojq.Code
	if fetchJQ != "" {
		query, err := gojq.Parse(fetchJQ)
		if err != nil {
			return fmt.Errorf("invalid --jq: %w", err)
		}
		code, err = gojq.Compile(query)
		if err != nil {
			return fmt.Errorf("invalid --jq: %w", err)
		}
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if code == nil {
		body, err := client.FetchRaw(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}

	records, err := courier.FetchTyped[any](ctx, client, args[0])
	if err != nil {
		return err
	}
	return runQuery(ctx, cmd.OutOrStdout(), code, records, fetchRaw)
}

// runQuery runs code over records and writes one line per result.
func runQuery(ctx context.Context, w io.Writer, code *gojq.Code, records []any, raw bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	iter := code.RunWithContext(ctx, records)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq: %w", err)
		}
		if s, isString := v.(string); isString && raw {
			if _, err := fmt.Fprintln(w, s); err != nil {
				return err
			}
			continue
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
}
