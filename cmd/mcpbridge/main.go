package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/httpserver"
	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "cli")

func main() {
	rootCmd := &cobra.Command{
		Use:   "mcpbridge",
		Short: "mcpbridge bridges LLM queries to MCP tool providers",
	}
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.KV(xlog.ERROR, "err", err.Error())
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		cfgFile   string
		addr      string
		modelName string
		timeout   time.Duration
		maxRounds int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				xlog.SetGlobalLogLevel(xlog.DEBUG)
			} else {
				xlog.SetGlobalLogLevel(xlog.INFO)
			}

			factory, err := llmfactory.Load(cfgFile)
			if err != nil {
				return err
			}

			var model llms.Model
			if modelName != "" {
				model, err = factory.ModelByName(modelName)
			} else {
				model, err = factory.DefaultModel()
			}
			if err != nil {
				return err
			}

			b := bridge.New(model,
				bridge.WithTimeout(timeout),
				bridge.WithMaxRounds(maxRounds),
			)

			srvCfg := httpserver.DefaultConfig()
			srvCfg.Addr = addr
			srv := httpserver.NewServer(b, srvCfg)

			serverErrors := make(chan error, 1)
			go func() {
				serverErrors <- srv.Start()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				return err
			case sig := <-shutdown:
				logger.KV(xlog.INFO, "status", "shutdown", "signal", sig.String())
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	cmd.Flags().StringVar(&cfgFile, "cfg", "llm.yaml", "path to LLM provider configuration")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&modelName, "model", "", "LLM model name, the config default when empty")
	cmd.Flags().DurationVar(&timeout, "timeout", bridge.DefaultRequestTimeout, "per-request deadline")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", bridge.DefaultMaxRounds, "model turn cap per request")

	return cmd
}
