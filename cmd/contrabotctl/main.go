package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/contrabot-io/contrabot/internal/booking"
	"github.com/contrabot-io/contrabot/internal/browser"
	"github.com/contrabot-io/contrabot/internal/config"
	"github.com/contrabot-io/contrabot/internal/directory"
	"github.com/contrabot-io/contrabot/internal/userstore"
)

func main() {
	root := &cobra.Command{
		Use:           "contrabotctl",
		Short:         "Bus ticket booking control CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBookCmd(),
		newCitiesCmd(),
		newWindowCmd(),
		newHealthCmd(),
		newBookingsCmd(),
		newPendingCmd(),
		newConfigCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// --- Direct booking commands (no daemon needed) ---

func newBookCmd() *cobra.Command {
	var (
		usersFile    string
		identity     string
		webDriverURL string
		headless     bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "book <from_id> <to_id> <YYYY-MM-DD>",
		Short: "Book a ticket directly, waiting for the window to open",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromID, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid departure city ID %q", args[0])
			}
			toID, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid arrival city ID %q", args[1])
			}
			travel, err := booking.ParseDate(args[2])
			if err != nil {
				return fmt.Errorf("invalid date %q, use YYYY-MM-DD", args[2])
			}

			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

			profile, err := userstore.NewStore(usersFile).Get(identity)
			if err != nil {
				return fmt.Errorf("load profile: %w (register via the bot first)", err)
			}

			cities := (&directory.Client{Logger: logger}).List(cmd.Context())
			fromName, err := directory.Lookup(cities, uint32(fromID))
			if err != nil {
				return fmt.Errorf("departure city: %w", err)
			}
			toName, err := directory.Lookup(cities, uint32(toID))
			if err != nil {
				return fmt.Errorf("arrival city: %w", err)
			}

			win := booking.ComputeWindow(travel)
			if err := win.Validate(time.Now()); err != nil {
				return fmt.Errorf("travel date: %w", err)
			}

			// Ctrl-C aborts the wait cleanly.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			waiter := &booking.Waiter{Logger: logger}
			err = waiter.Wait(ctx, win, func(opensAt time.Time) {
				fmt.Printf("Booking opens at %s, waiting...\n", opensAt.Format("2006-01-02 15:04"))
			})
			if err != nil {
				return fmt.Errorf("wait aborted: %w", err)
			}

			exec := &booking.Executor{
				Browser:  &browser.SeleniumFactory{URL: webDriverURL, Logger: logger},
				Headless: headless,
				Logger:   logger,
			}
			result, err := exec.Execute(ctx, profile,
				directory.City{Name: fromName, ID: uint32(fromID)},
				directory.City{Name: toName, ID: uint32(toID)},
				travel)
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&usersFile, "users-file", envOr("CONTRABOT_USERS_FILE", "users.json"), "Traveler profile file")
	cmd.Flags().StringVar(&identity, "identity", envOr("CONTRABOT_IDENTITY", ""), "Profile identity to book for")
	cmd.Flags().StringVar(&webDriverURL, "webdriver-url", os.Getenv("CONTRABOT_WEBDRIVER_URL"), "WebDriver endpoint")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	cmd.MarkFlagRequired("identity")
	return cmd
}

func newCitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cities",
		Short: "List bookable cities and their IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cities := (&directory.Client{}).List(cmd.Context())
			for _, c := range cities {
				fmt.Printf("%-4d %s\n", c.ID, c.Name)
			}
			return nil
		},
	}
}

func newWindowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "window <YYYY-MM-DD>",
		Short: "Show when booking opens for a travel date",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			travel, err := booking.ParseDate(args[0])
			if err != nil {
				return fmt.Errorf("invalid date %q, use YYYY-MM-DD", args[0])
			}
			win := booking.ComputeWindow(travel)
			now := time.Now()

			fmt.Printf("Travel date:  %s\n", win.Travel.Format("2006-01-02"))
			fmt.Printf("Opens at:     %s\n", win.OpensAt.Format("2006-01-02 15:04 MST"))
			if err := win.Validate(now); err != nil {
				fmt.Println("Status:       not bookable (needs more than one day of notice)")
				return nil
			}
			if win.OpenAt(now) {
				fmt.Println("Status:       open")
			} else {
				fmt.Printf("Status:       opens in %s\n", win.OpensAt.Sub(now).Round(time.Minute))
			}
			return nil
		},
	}
}

// --- Daemon API client commands ---

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := apiGet(cmd.Context(), "/api/health")
			if err != nil {
				return err
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func newBookingsCmd() *cobra.Command {
	var (
		identity string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List recent booking attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := fmt.Sprintf("?limit=%d", limit)
			if identity != "" {
				query += "&identity=" + identity
			}
			body, err := apiGet(cmd.Context(), "/api/bookings"+query)
			if err != nil {
				return err
			}

			var attempts []map[string]any
			if err := json.Unmarshal(body, &attempts); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			for _, a := range attempts {
				fmt.Printf("%-10s %-22s %s → %s on %s\n",
					a["status"], a["identity"], a["origin"], a["destination"], a["travel_date"])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "Filter by identity")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max results")
	return cmd
}

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List bookings waiting for their window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := apiGet(cmd.Context(), "/api/pending")
			if err != nil {
				return err
			}
			fmt.Println(prettyJSON(body))
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Println("config is valid")
			return nil
		},
	})
	return cmd
}

// --- Helpers ---

func apiGet(ctx context.Context, path string) ([]byte, error) {
	base := envOr("CONTRABOT_API_URL", "http://localhost:8080")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("CONTRABOT_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
