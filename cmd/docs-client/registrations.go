package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/review"
	"github.com/docsweb/docs-client/pkg/protocol"
)

func cmdRegistrations(args []string) {
	if len(args) < 1 {
		fatalf("Usage: docs-client registrations list|approve|reject [flags]")
	}

	switch args[0] {
	case "list", "ls":
		cmdRegistrationsList(args[1:])
	case "approve":
		cmdRegistrationsDecide(review.ActionApprove, args[1:])
	case "reject":
		cmdRegistrationsDecide(review.ActionReject, args[1:])
	default:
		fatalf("Unknown registrations command: %s", args[0])
	}
}

func cmdRegistrationsList(args []string) {
	fs := flag.NewFlagSet("registrations list", flag.ExitOnError)
	cf := addCommonFlags(fs)
	status := fs.String("status", protocol.RegistrationPending, "Status filter (PENDING, APPROVED, REJECTED, empty for all)")
	search := fs.String("search", "", "Match username or email")
	all := fs.Bool("all", false, "Load every page")
	fs.Parse(args)

	a := setup(cf)
	defer logging.Sync()
	ctx, cancel := signalContext()
	defer cancel()

	screen := review.New(a.api, review.WithEvents(a.events))
	screen.SetFilter(*status, *search)
	if err := screen.LoadRegistrations(ctx); err != nil {
		fatalf("Error: %s", screen.State().Error)
	}
	for *all && screen.State().HasMore {
		if err := screen.LoadMoreRegistrations(ctx); err != nil {
			fatalf("Error: %s", screen.State().Error)
		}
	}

	st := screen.State()
	if len(st.Registrations) == 0 {
		fmt.Println("No registrations.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSTATUS\tCREATED\tMESSAGE")
	for _, r := range st.Registrations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Username, r.Email, r.Status, formatDate(r.CreateDate), r.Message)
	}
	w.Flush()

	fmt.Printf("\nShowing %d of %d", st.LoadCount, st.Total)
	if st.HasMore {
		fmt.Print(" (use -all to load everything)")
	}
	fmt.Println()
}

func cmdRegistrationsDecide(action string, args []string) {
	fs := flag.NewFlagSet("registrations "+action, flag.ExitOnError)
	cf := addCommonFlags(fs)
	message := fs.String("message", "", "Message sent to the applicant")
	var quota *float64
	if action == review.ActionApprove {
		quota = fs.Float64("quota", review.DefaultQuotaGB, "Storage quota in GB (decimal)")
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fatalf("Usage: docs-client registrations %s [flags] <registration-id>", action)
	}

	a := setup(cf)
	defer logging.Sync()
	ctx, cancel := signalContext()
	defer cancel()

	screen := review.New(a.api, review.WithEvents(a.events))
	reg := protocol.Registration{ID: fs.Arg(0)}
	if action == review.ActionApprove {
		screen.Approve(reg)
		screen.SetQuotaGB(*quota)
	} else {
		screen.Reject(reg)
	}
	screen.SetMessage(*message)

	if err := decide(ctx, screen); err != nil {
		fatalf("Error: %s", err)
	}

	if action == review.ActionApprove {
		fmt.Printf("Registration %s approved with a %s quota.\n", reg.ID, humanize.Bytes(uint64(review.QuotaBytes(*quota))))
	} else {
		fmt.Printf("Registration %s rejected.\n", reg.ID)
	}
}

// decide confirms the pending action. A failed decision leaves the dialog
// open and its alert becomes the error; a failed reload afterwards is only
// logged.
func decide(ctx context.Context, screen *review.Screen) error {
	err := screen.ConfirmAction(ctx)
	if err == nil {
		return nil
	}
	st := screen.State()
	if !st.DialogOpen {
		logging.Warn("registration list reload failed", logging.Err(err))
		return nil
	}
	if st.Alert != "" {
		return errors.New(st.Alert)
	}
	return err
}

func formatDate(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return humanize.Time(time.UnixMilli(ms))
}
