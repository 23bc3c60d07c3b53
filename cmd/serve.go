package cmd

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/alertbench/internal/harness"
	"github.com/xkilldash9x/alertbench/internal/mockweb"
	"github.com/xkilldash9x/alertbench/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// newServeCmd creates the `serve` command.
func newServeCmd(loadConfig configLoader) *cobra.Command {
	var listen string

	serveCmd := &cobra.Command{
		Use:   "serve <suite.yaml>",
		Short: "Serves a suite's pages through the mock proxy for use with an external browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := loadConfig()
			if cmd.Flags().Changed("listen") {
				cfg.SetProxyListen(listen)
			}

			suite, err := harness.LoadSuiteFile(args[0])
			if err != nil {
				return err
			}
			base, err := url.Parse(cfg.Harness().BaseURL)
			if err != nil {
				return fmt.Errorf("invalid harness.base_url: %w", err)
			}

			conn := mockweb.NewMockConnection(mockweb.WithLogger(logger))
			pages := registerSuite(conn, suite, base)

			srv := mockweb.NewServer(conn, base.Host, cfg.Proxy().Verbose, logger)
			addr, err := srv.Start(cfg.Proxy().Listen)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Serving suite %s on %s (use it as an HTTP proxy or browse directly)\n", suite.Name, addr)
			fmt.Fprintf(out, "  index: %s\n", base.String())
			for _, p := range pages {
				fmt.Fprintf(out, "  %s: %s\n", p.name, p.url)
			}

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Mock server did not shut down cleanly.", zap.Error(err))
			}
			return nil
		},
	}

	serveCmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on (default from proxy.listen)")
	return serveCmd
}

type servedPage struct {
	name string
	url  string
}

// registerSuite puts every case on conn. Cases without their own URL get a
// page under the base URL named after the case, and the base URL serves an
// index linking to all of them.
func registerSuite(conn *mockweb.MockConnection, suite *harness.Suite, base *url.URL) []servedPage {
	var pages []servedPage
	var index strings.Builder
	index.WriteString("<html><head><title>" + html.EscapeString(suite.Name) + "</title></head><body><ul>\n")
	for i := range suite.Cases {
		c := &suite.Cases[i]
		pageURL := c.URL
		if pageURL == "" {
			pageURL = base.ResolveReference(&url.URL{Path: "cases/" + c.Name + ".html"}).String()
		}
		served := *c
		served.URL = pageURL
		served.DefaultResponse = nil
		served.Register(conn, pageURL)
		pages = append(pages, servedPage{name: c.Name, url: pageURL})
		fmt.Fprintf(&index, "<li><a href=%q>%s</a></li>\n", pageURL, html.EscapeString(c.Name))
	}
	index.WriteString("</ul></body></html>")
	conn.SetResponseAsHTML(base.String(), index.String())
	return pages
}
