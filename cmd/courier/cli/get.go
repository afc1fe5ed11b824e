package cli

import (
	"fmt"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/meigma/courier"
)

var (
	getOutput string
	getDigest string
)

var getCmd = &cobra.Command{
	Use:     "get <url>",
	Aliases: []string{"download"},
	Short:   "Download a file into the download directory",
	GroupID: "transfer",
	Long: `Get downloads a URL into the download directory and prints the path of
the finished file.

The file name comes from the Content-Disposition header, else the last
segment of the URL path. Interrupting the command cancels the download and
removes the partial file.

Examples:
  courier get https://example.com/releases/tool.tar.gz
  courier get https://example.com/data --output data.json
  courier get https://example.com/tool.tar.gz --digest sha256:9f86d0...`,
	Args:              cobra.ExactArgs(1),
	RunE:              runGet,
	ValidArgsFunction: completeURLArg,
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "File name inside the download directory")
	getCmd.Flags().StringVar(&getDigest, "digest", "", "Expected digest of the content (e.g. sha256:...)")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	var opts []courier.DownloadOption
	if getOutput != "" {
		opts = append(opts, courier.WithFilename(getOutput))
	}
	if getDigest != "" {
		d, err := digest.Parse(getDigest)
		if err != nil {
			return fmt.Errorf("invalid --digest: %w", err)
		}
		opts = append(opts, courier.WithDigest(d))
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	tr, err := client.StartDownload(ctx, args[0], opts...)
	if err != nil {
		return err
	}

	bar := newTransferProgress("Downloading")
	for e := range tr.Events() {
		if e.Type == courier.EventProgress {
			bar.Update(e.Progress)
		}
	}
	bar.Finish()

	result, err := tr.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Path)
	return nil
}
