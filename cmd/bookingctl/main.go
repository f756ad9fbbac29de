// Command bookingctl books and manages appointments against a clinic API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/medspa-booking/internal/appointments"
	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/catalog"
	"github.com/wolfman30/medspa-booking/internal/clinicapi"
	appconfig "github.com/wolfman30/medspa-booking/internal/config"
	"github.com/wolfman30/medspa-booking/internal/projection"
	"github.com/wolfman30/medspa-booking/internal/wizard"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const usage = `usage: bookingctl <command> [flags]

commands:
  treatments                       list bookable treatments
  professionals [-treatment ID]    list professionals
  slots -professional ID -date D   show a day's slots
  book -treatment ID -professional ID -date D -time HH:MM [-notes TEXT]
  list [upcoming|history]          list your appointments
  cancel -id ID [-reason TEXT]
  reschedule -id ID -treatment ID -professional ID -date D -time HH:MM`

type app struct {
	client *clinicapi.Client
	repo   *appointments.Repository
	out    io.Writer
	now    func() time.Time
	loc    *time.Location
	logger *logging.Logger
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("bookingctl")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, os.Stdout, logger)
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if booking.Retryable(err) {
			fmt.Fprintln(os.Stderr, "the clinic could not be reached; try again")
		}
		os.Exit(1)
	}
}

func newApp(cfg *appconfig.Config, out io.Writer, logger *logging.Logger) *app {
	client := clinicapi.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.HTTPTimeout, logger)
	return &app{
		client: client,
		repo:   appointments.NewRepository(client, appointments.WithLogger(logger)),
		out:    out,
		now:    time.Now,
		loc:    cfg.Location(),
		logger: logger,
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "treatments":
		return a.treatments(ctx)
	case "professionals":
		return a.professionals(ctx, rest)
	case "slots":
		return a.slots(ctx, rest)
	case "book":
		return a.book(ctx, rest)
	case "list":
		return a.list(ctx, rest)
	case "cancel":
		return a.cancel(ctx, rest)
	case "reschedule":
		return a.reschedule(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func (a *app) treatments(ctx context.Context) error {
	list, err := a.client.Treatments(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tMINUTES")
	for _, t := range list {
		name := t.Name
		if t.VIPExclusive {
			name += " (VIP)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t$%d.%02d\t%d\n", t.ID, name, t.Category, t.PriceCents/100, t.PriceCents%100, t.DurationMinutes)
	}
	return tw.Flush()
}

func (a *app) professionals(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("professionals", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	treatmentID := fs.String("treatment", "", "only professionals offering this treatment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	list, err := a.client.Professionals(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSPECIALTY")
	for _, p := range catalog.ProfessionalsFor(list, *treatmentID) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Specialty)
	}
	return tw.Flush()
}

func (a *app) slots(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("slots", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	professionalID := fs.String("professional", "", "professional id")
	rawDate := fs.String("date", "", "YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := booking.ParseDate(*rawDate)
	if err != nil {
		return err
	}
	slots, err := a.client.GetSlots(ctx, *professionalID, date)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		fmt.Fprintln(a.out, "no slots: the professional does not work that day")
		return nil
	}
	for _, s := range slots {
		mark := "open"
		if !s.Available {
			mark = "taken"
		}
		fmt.Fprintf(a.out, "%s  %s\n", s.Time, mark)
	}
	return nil
}

type draftFlags struct {
	treatment    *string
	professional *string
	date         *string
	clock        *string
}

func addDraftFlags(fs *flag.FlagSet) draftFlags {
	return draftFlags{
		treatment:    fs.String("treatment", "", "treatment id"),
		professional: fs.String("professional", "", "professional id"),
		date:         fs.String("date", "", "YYYY-MM-DD"),
		clock:        fs.String("time", "", "HH:MM"),
	}
}

func (f draftFlags) parseDate() (booking.Date, error) {
	return booking.ParseDate(*f.date)
}

// book walks the wizard one step at a time, so every check the interactive
// flow makes also applies here.
func (a *app) book(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	df := addDraftFlags(fs)
	notes := fs.String("notes", "", "notes for the clinic")
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := df.parseDate()
	if err != nil {
		return err
	}

	session := wizard.NewSession(a.client, a.client, a.repo,
		wizard.WithClock(a.now),
		wizard.WithLocation(a.loc),
		wizard.WithLogger(a.logger),
	)
	if err := session.SelectTreatment(ctx, *df.treatment); err != nil {
		return err
	}
	if err := session.SelectProfessional(ctx, *df.professional); err != nil {
		return err
	}
	if err := session.SelectDate(ctx, date); err != nil {
		return err
	}
	if err := session.SelectTime(*df.clock); err != nil {
		return err
	}
	appt, err := session.Submit(ctx, strings.TrimSpace(*notes))
	if err != nil {
		if errors.Is(err, booking.ErrSlotConflict) {
			return fmt.Errorf("%s was taken by someone else; pick another time: %w", *df.clock, err)
		}
		return err
	}
	fmt.Fprintf(a.out, "booked %s with %s on %s at %s (%s) id=%s\n",
		appt.Treatment.Name, appt.Professional.Name, appt.Date, appt.Time, appt.Status, appt.ID)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	tab := projection.TabUpcoming
	if len(args) > 0 {
		parsed, err := projection.ParseTab(args[0])
		if err != nil {
			return err
		}
		tab = parsed
	}
	all, err := a.repo.Refresh(ctx)
	if err != nil {
		return err
	}
	view := projection.Project(all, tab, a.now(), a.loc)
	if len(view) == 0 {
		fmt.Fprintf(a.out, "no %s appointments\n", tab)
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tTREATMENT\tPROFESSIONAL\tSTATUS")
	for _, appt := range view {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", appt.ID, appt.Date, appt.Time, appt.Treatment.Name, appt.Professional.Name, appt.Status)
	}
	return tw.Flush()
}

func (a *app) cancel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "appointment id")
	reason := fs.String("reason", "", "why you are cancelling")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.repo.Refresh(ctx); err != nil {
		return err
	}
	if err := a.repo.Cancel(ctx, *id, strings.TrimSpace(*reason)); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "cancelled %s\n", *id)
	return nil
}

func (a *app) reschedule(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reschedule", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "appointment id")
	df := addDraftFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	date, err := df.parseDate()
	if err != nil {
		return err
	}
	clock, err := booking.NormalizeClock(*df.clock)
	if err != nil {
		return booking.Wrap(booking.ErrInvalidDate, "bookingctl: reschedule", err)
	}
	if _, err := a.repo.Refresh(ctx); err != nil {
		return err
	}
	draft := booking.Draft{TreatmentID: *df.treatment, ProfessionalID: *df.professional, Date: date, Time: clock}
	appt, err := a.repo.Reschedule(ctx, *id, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "moved %s to %s at %s id=%s\n", *id, appt.Date, appt.Time, appt.ID)
	return nil
}
