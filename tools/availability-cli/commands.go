package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// errUnavailable makes check exit non-zero without printing usage.
var errUnavailable = errors.New("slot unavailable")

type globalOptions struct {
	baseURL  string
	grpcAddr string
	token    string
	timeout  time.Duration
}

func (o globalOptions) client() (client, error) {
	if o.grpcAddr != "" {
		return newGRPCClient(o.grpcAddr)
	}
	return newHTTPClient(o.baseURL, o.token, o.timeout), nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "availability-cli",
		Short:         "Inspect clinic availability",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", getenv("BASE_URL", "http://localhost:8090"), "scheduling-service HTTP base url")
	root.PersistentFlags().StringVar(&opts.grpcAddr, "grpc-addr", getenv("GRPC_ADDR", ""), "use the gRPC API at host:port instead of HTTP")
	root.PersistentFlags().StringVar(&opts.token, "token", getenv("TOKEN", ""), "bearer token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(slotsCmd(opts), checkCmd(opts))
	return root
}

func slotsCmd(opts *globalOptions) *cobra.Command {
	var prof, date, from, to string
	var onlyFree bool
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List resolved slots for a date or range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date != "" {
				from, to = date, date
			}
			if prof == "" || from == "" {
				return errors.New("--professional-id and --date (or --from) are required")
			}
			if to == "" {
				to = from
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := withTimeout(cmd, opts.timeout)
			defer cancel()
			slots, err := c.Slots(ctx, prof, from, to)
			if err != nil {
				return err
			}
			return printSlots(cmd.OutOrStdout(), slots, onlyFree)
		},
	}
	cmd.Flags().StringVar(&prof, "professional-id", "", "professional id")
	cmd.Flags().StringVar(&date, "date", "", "single date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "range end, inclusive (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&onlyFree, "available", false, "show only available slots")
	return cmd
}

func checkCmd(opts *globalOptions) *cobra.Command {
	var p proposal
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether an appointment would be accepted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.ProfessionalID == "" || p.Date == "" || p.StartTime == "" || p.DurationMinutes <= 0 {
				return errors.New("--professional-id, --date, --start and --duration are required")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := withTimeout(cmd, opts.timeout)
			defer cancel()
			res, err := c.Check(ctx, p)
			if err != nil {
				return err
			}
			if res.Available {
				fmt.Fprintln(cmd.OutOrStdout(), "available")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unavailable: %s\n", res.Reason)
			return errUnavailable
		},
	}
	cmd.Flags().StringVar(&p.ProfessionalID, "professional-id", "", "professional id")
	cmd.Flags().StringVar(&p.Date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&p.StartTime, "start", "", "start time (HH:mm)")
	cmd.Flags().IntVar(&p.DurationMinutes, "duration", 0, "duration in minutes")
	cmd.Flags().StringVar(&p.ExcludeAppointmentID, "exclude", "", "appointment id to ignore, for reschedules")
	return cmd
}

func printSlots(out io.Writer, slots []slot, onlyFree bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTIME\tMIN\tSTATUS\tREF")
	for _, s := range slots {
		if onlyFree && s.Status != "available" {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Date, s.Time, s.DurationMinutes, s.Status, s.OccupantRef)
	}
	return tw.Flush()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
