// File: cmd/proxy.go
package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeffcmilberger/openclaw-browser-guard/internal/httpfilter"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/intent"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/netguard"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/observability"
)

var proxyAddr string

// proxyCmd runs the enforcement proxy for a request: the HTTP filter
// derived from the intent is applied to all traffic routed through the
// listener.
var proxyCmd = &cobra.Command{
	Use:   "proxy <request...>",
	Short: "Run the HTTP enforcement proxy for a request's intent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		request := strings.Join(args, " ")

		parser := intent.NewParser(logger)
		in := parser.Parse(request, intent.Options{})
		if err := intent.MustValidate(in); err != nil {
			return err
		}

		filter := httpfilter.FromIntent(in, logger)
		proxy := netguard.NewEnforcementProxy(filter, logger)

		addr := proxyAddr
		if addr == "" {
			addr = cfg.Proxy.Address
		}
		return proxy.ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	proxyCmd.Flags().StringVar(&proxyAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(proxyCmd)
}
