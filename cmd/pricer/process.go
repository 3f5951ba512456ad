package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-price-must-flow/internal/cli"
	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <invoice.json>...",
		Short: "Match invoice lines and apply validated prices",
		Long: `Process one or more extracted invoices.

Each file holds a JSON invoice:

  {"ref": {"invoice_id": "INV-1", "vendor_id": "RAJA_FOODS"},
   "currency": "USD",
   "items": [{"line_number": 1, "product_name": "DEEP CASHEW WHOLE 7OZ (20)",
              "quantity": 1, "unit_price": 30.00, "units_per_pack": 20}]}

Confident matches update product costs; everything else lands in the review
queue.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().String("actor", "pipeline", "Actor recorded on price history")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while processing (e.g. :9090)")
	cmd.Flags().Bool("json", false, "Print reports as JSON")
	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	actor, _ := cmd.Flags().GetString("actor")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Failed to close resources", "error", err)
		}
	}()

	if metricsAddr == "" {
		metricsAddr = a.cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		stop, err := serveMetrics(ctx, metricsAddr, a.metrics.Handler())
		if err != nil {
			return err
		}
		defer stop()
	}

	out := cmd.OutOrStdout()
	progress := cli.NewProgress(cmd.ErrOrStderr(), len(args), "Processing invoices...")
	var reports []*model.InvoiceReport
	var failed int

	for _, path := range args {
		inv, err := readInvoice(path)
		if err != nil {
			slog.Error("Failed to read invoice", "path", path, "error", err)
			failed++
			progress.Step()
			continue
		}
		if inv.Ref.Actor == "" {
			inv.Ref.Actor = actor
		}

		report, err := a.coord.ProcessInvoice(ctx, inv)
		if err != nil {
			return fmt.Errorf("processing %s: %w", path, err)
		}
		reports = append(reports, report)
		progress.Step()
	}
	progress.Finish()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			fmt.Fprintln(out, cli.FormatInvoiceReport(r))
		}
	}

	if failed > 0 {
		return common.NewUserError(fmt.Sprintf("%d of %d invoice files could not be read", failed, len(args)), nil)
	}
	return nil
}

// readInvoice loads an invoice file and fills in defaults: an invoice id from
// the file name and sequential line numbers.
func readInvoice(path string) (*model.Invoice, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied invoice path
	if err != nil {
		return nil, err
	}

	var inv model.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("invalid invoice JSON: %w", err)
	}
	if len(inv.Items) == 0 {
		return nil, errors.New("invoice has no items")
	}
	if inv.Ref.InvoiceID == "" {
		inv.Ref.InvoiceID = path
	}
	for i := range inv.Items {
		if inv.Items[i].LineNumber == 0 {
			inv.Items[i].LineNumber = i + 1
		}
	}
	return &inv, nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
