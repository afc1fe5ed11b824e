package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/meigma/courier"
)

var putContentType string

var putCmd = &cobra.Command{
	Use:     "put <url> <file>",
	Aliases: []string{"upload"},
	Short:   "Upload a file with POST",
	GroupID: "transfer",
	Long: `Put POSTs the contents of a file, or stdin when the file is "-", and
prints the server's response body.

The content type is detected from the data unless --content-type is given.
A response outside the 2xx range is reported as an error after the body has
been printed.

Examples:
  courier put https://example.com/posts post.json
  cat report.csv | courier put https://example.com/reports - --content-type text/csv`,
	Args:              cobra.ExactArgs(2),
	RunE:              runPut,
	ValidArgsFunction: completePutArgs,
}

func init() {
	putCmd.Flags().StringVarP(&putContentType, "content-type", "t", "", "Content type of the body (detected when empty)")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	body, err := readBody(cmd, args[1])
	if err != nil {
		return err
	}

	contentType := putContentType
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	tr, err := client.StartUpload(ctx, args[0], body, contentType)
	if err != nil {
		return err
	}

	bar := newTransferProgress("Uploading")
	tr.Notify(bar.Update, nil)

	result, err := tr.Wait(ctx)
	bar.Finish()
	if err != nil {
		return err
	}

	meta := result.Response
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d %s (%s, %d bytes sent)\n",
			meta.StatusCode, meta.Header.Get("Content-Type"), contentType, result.Bytes)
	}
	if _, err := cmd.OutOrStdout().Write(meta.Body); err != nil {
		return err
	}
	if meta.StatusCode < 200 || meta.StatusCode > 299 {
		return &courier.StatusError{StatusCode: meta.StatusCode}
	}
	return nil
}

// readBody reads path, or stdin when path is "-".
func readBody(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
