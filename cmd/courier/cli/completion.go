package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// completeURLArg offers the URL schemes courier understands for the first
// argument and nothing afterwards.
func completeURLArg(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(scheme, toComplete) {
			completions = append(completions, scheme)
		}
	}
	// NoSpace keeps the cursor after the scheme so the host can be typed.
	return completions, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// completePutArgs provides completion for the put command arguments:
// - First arg: target URL
// - Second arg: local file (filesystem completion)
func completePutArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeURLArg(cmd, args, toComplete)
	case 1:
		return nil, cobra.ShellCompDirectiveDefault
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
