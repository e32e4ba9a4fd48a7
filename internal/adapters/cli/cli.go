package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"sklad-ledger/internal/core"
	"sklad-ledger/internal/report"

	"github.com/google/uuid"
)

// Services are the core components the CLI drives.
type Services struct {
	Ledger        core.LedgerService
	Balances      core.BalanceStore
	Operations    core.OperationLog
	RetryAttempts uint64
}

// Scope is the organization and actor every command runs as.
type Scope struct {
	OrganizationID core.OrganizationID
	ActorID        core.ActorID
}

// Run executes a one-shot CLI command. args is os.Args[1:]; the first
// element is the subcommand name.
func Run(ctx context.Context, svc Services, scope Scope, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: skladctl <apply|bal|ops|report> [args]")
	}

	switch args[0] {
	case "apply", "a":
		var req core.OperationRequest
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		op, err := core.RetryApply(ctx, svc.Ledger, svc.RetryAttempts, req, scope.OrganizationID, scope.ActorID)
		if err != nil {
			return fmt.Errorf("apply failed: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(op)

	case "bal", "balances":
		filter := core.BalanceFilter{}
		if len(args) > 1 {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("warehouse id must be a UUID: %w", err)
			}
			filter.WarehouseID = &id
		}
		balances, err := svc.Balances.ListBalances(ctx, scope.OrganizationID, filter)
		if err != nil {
			return fmt.Errorf("failed to list balances: %w", err)
		}
		printBalances(out, balances)
		return nil

	case "ops", "operations":
		ops, err := svc.Operations.List(ctx, core.OperationFilter{OrganizationID: scope.OrganizationID, Limit: 50})
		if err != nil {
			return fmt.Errorf("failed to list operations: %w", err)
		}
		printOperations(out, ops)
		return nil

	case "report":
		if len(args) < 2 {
			return errors.New("usage: skladctl report <file.xlsx>")
		}
		rows, err := svc.Balances.StockSummary(ctx, scope.OrganizationID, nil)
		if err != nil {
			return fmt.Errorf("failed to build stock summary: %w", err)
		}
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		if err := report.WriteStockSummary(f, report.StockTitle(nil), rows, time.Now()); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close report file: %w", err)
		}
		fmt.Fprintf(out, "Report written to %s (%d products).\n", args[1], len(rows))
		return nil

	default:
		return fmt.Errorf("unknown command: %s\nAvailable: apply, bal, ops, report", args[0])
	}
}

func printBalances(out io.Writer, balances []core.Balance) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 96))
	fmt.Fprintf(out, "  %-36s %-36s %8s %8s\n", "NOMENCLATURE", "WAREHOUSE", "QTY", "AVAIL")
	fmt.Fprintln(out, strings.Repeat("-", 96))
	for _, b := range balances {
		marker := ""
		if b.BelowMinimum() {
			marker = " LOW"
		}
		fmt.Fprintf(out, "  %-36s %-36s %8d %8d%s\n", b.NomenclatureID, b.WarehouseID, b.Quantity, b.Available(), marker)
	}
	fmt.Fprintln(out, strings.Repeat("=", 96))
}

func printOperations(out io.Writer, ops []core.StockOperation) {
	for _, op := range ops {
		fmt.Fprintf(out, "#%-6d %-10s %-36s %6d  %s -> %s\n",
			op.Seq, op.Type, op.NomenclatureID, op.Quantity, sideLabel(op.FromWarehouseID), sideLabel(op.ToWarehouseID))
	}
}

func sideLabel(id *uuid.UUID) string {
	if id == nil {
		return "-"
	}
	return id.String()
}
