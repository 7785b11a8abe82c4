package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/docharvest/docpipe"
	"github.com/hazyhaar/docharvest/httpapi"
)

func (a *app) extractCmd() *cobra.Command {
	var (
		workers int
		noDB    bool
		asJSON  bool
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "extract <files...>",
		Short: "Extract documents into the output tree and the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if outDir != "" {
				a.cfg.OutputDir = outDir
			}
			p, closeDB := a.newPipeline(ctx, !noDB, workers)
			defer closeDB()

			results, err := p.ProcessAll(ctx, args)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(results); encErr != nil {
					return encErr
				}
			} else {
				for _, r := range results {
					printResult(cmd, r.Path, r.Name, r.DocumentID, len(r.Files), r.Err())
				}
			}
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if !r.OK() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "documents processed concurrently (default: config workers)")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "skip the relational sink")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output root (default: config output_dir)")
	return cmd
}

func printResult(cmd *cobra.Command, path, name, id string, files int, err error) {
	w := cmd.OutOrStdout()
	if err != nil {
		fmt.Fprintf(w, "FAIL  %s: %v\n", path, err)
		return
	}
	if id == "" {
		id = "-"
	}
	fmt.Fprintf(w, "OK    %s  name=%s files=%d document_id=%s\n", path, name, files, id)
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the database tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.Database.Enabled() {
				return errors.New("database driver is none; nothing to create")
			}
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			driver, _ := a.cfg.Database.DSN()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", driver)
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if listen != "" {
				a.cfg.Listen = listen
			}
			p, closeDB := a.newPipeline(ctx, true, 0)
			defer closeDB()

			srv := &http.Server{
				Addr:              a.cfg.Listen,
				Handler:           httpapi.NewRouter(p, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      5 * time.Minute,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting", "addr", a.cfg.Listen)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: config listen)")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the docharvest tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, closeDB := a.newPipeline(ctx, true, 0)
			defer closeDB()

			srv := mcp.NewServer(&mcp.Implementation{Name: "docharvest", Version: version}, nil)
			p.RegisterMCP(srv)
			a.logger.Info("MCP stdio starting")
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func (a *app) formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported document formats",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			for _, f := range docpipe.SupportedFormats() {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
		},
	}
}
