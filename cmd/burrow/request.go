package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/request"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:     "request",
	Aliases: []string{"requests", "req"},
	Short:   "Manage reservation requests",
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active reservation requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			requests, err := l.controller.ListRequests(principal(cmd))
			if err != nil {
				return err
			}
			if len(requests) == 0 {
				fmt.Println("No requests found")
				return nil
			}
			fmt.Printf("%-36s  %-6s  %-18s  %-12s  %s\n", "ID", "KIND", "STATE", "USER", "SLOT")
			for _, r := range requests {
				fmt.Printf("%-36s  %-6s  %-18s  %-12s  %s\n", r.ID, r.Kind, r.AllocationState, r.UserID, requestSlot(r))
			}
			return nil
		})
	},
}

var requestGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a request with its report and reservations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			r, err := l.controller.GetRequest(principal(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ID:          %s\n", r.ID)
			fmt.Printf("Kind:        %s\n", r.Kind)
			fmt.Printf("User:        %s\n", r.UserID)
			fmt.Printf("State:       %s\n", r.State)
			fmt.Printf("Allocation:  %s\n", r.AllocationState)
			fmt.Printf("Slot:        %s\n", requestSlot(r))
			if r.Specification != nil {
				fmt.Printf("Specifies:   %s\n", r.Specification.Kind)
			}
			if r.ModifiedRequestID != "" {
				fmt.Printf("Modifies:    %s\n", r.ModifiedRequestID)
			}
			if r.Report != nil {
				fmt.Println()
				fmt.Println("Report:")
				fmt.Print(indent(r.Report.String(), "  "))
			}

			reservations, err := l.controller.ListReservations(principal(cmd), r.ID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println("Reservations:")
			printReservations(reservations)
			return nil
		})
	},
}

var requestDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a request and release its allocation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			if err := l.controller.DeleteRequest(principal(cmd), args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Request deleted: %s\n", args[0])
			return nil
		})
	},
}

var requestRevertCmd = &cobra.Command{
	Use:   "revert ID",
	Short: "Revert a request to the version it modified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			previous, err := l.controller.RevertRequest(principal(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✓ Request reverted: %s -> %s\n", args[0], previous.ID)
			return nil
		})
	},
}

var requestRetryCmd = &cobra.Command{
	Use:   "retry ID",
	Short: "Retry the failed allocation of a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocal(func(l *local) error {
			r, err := l.controller.UpdateRequest(principal(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✓ Request updated: %s (%s)\n", r.ID, r.AllocationState)
			return nil
		})
	},
}

func init() {
	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestGetCmd)
	requestCmd.AddCommand(requestDeleteCmd)
	requestCmd.AddCommand(requestRevertCmd)
	requestCmd.AddCommand(requestRetryCmd)
}

func requestSlot(r *request.ReservationRequest) string {
	if !r.IsSet() {
		return r.Slot.String()
	}
	slots := make([]string, 0, len(r.Slots))
	for _, slot := range r.Slots {
		slots = append(slots, slot.String())
	}
	return strings.Join(slots, ", ")
}

func printReservations(reservations []*types.Reservation) {
	if len(reservations) == 0 {
		fmt.Println("  none")
		return
	}
	fmt.Printf("  %-36s  %-9s  %-24s  %s\n", "ID", "KIND", "TARGET", "SLOT")
	for _, r := range reservations {
		fmt.Printf("  %-36s  %-9s  %-24s  %s\n", r.ID, r.Kind, describeTarget(r), r.Slot)
	}
}

func describeTarget(r *types.Reservation) string {
	switch {
	case r.Room != nil:
		return fmt.Sprintf("%s (%d licenses)", r.TargetID, r.Room.LicenseCount)
	case r.Value != nil:
		return fmt.Sprintf("%s=%s", r.TargetID, r.Value.Value)
	case r.Existing != nil:
		return "reuses " + r.Existing.ReservationID
	case r.TargetID == "":
		return "-"
	default:
		return r.TargetID
	}
}

func indent(text, prefix string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected RFC 3339: %w", value, err)
	}
	return t, nil
}
