package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contrabot-io/contrabot/internal/browser"
	"github.com/contrabot-io/contrabot/internal/directory"
	"github.com/contrabot-io/contrabot/internal/userstore"
)

const (
	searchURLFormat = "https://marcheroma.contram.it/home/Ricerca?PartenzaID=%d&DestinazioneID=%d&DataPartenza=%s&NumeroStudenti=1&NumeroAdulti=0"
	cartURL         = "https://marcheroma.contram.it/Home/RitornaCarrello?"

	reserveLabel  = "Prenota"
	checkoutLabel = "Procedi all'acquisto"
	confirmLabel  = "Conferma acquisto"
)

// formFields is the contract between profile fields and the form field names
// the carrier's cart page expects, in fill order. If the site renames a field
// the fill fails and the whole attempt aborts.
var formFields = []struct {
	name  string
	value func(p userstore.Profile) string
}{
	{"EmailAcquirente", func(p userstore.Profile) string { return p.PersonalEmail }},
	{"Nominativi[0].Nome", func(p userstore.Profile) string { return p.FirstName }},
	{"Nominativi[0].Cognome", func(p userstore.Profile) string { return p.LastName }},
	{"Nominativi[0].Email", func(p userstore.Profile) string { return p.Email }},
	{"Nominativi[0].Telefono", func(p userstore.Profile) string { return p.Phone }},
}

// Executor drives one booking attempt through the carrier's site. The caller
// must have resolved both cities and validated the window as open; the
// executor does not re-check timing.
type Executor struct {
	Browser   browser.Factory
	Headless  bool
	StepDelay time.Duration // pause between page interactions, defaults to 5s
	Logger    *slog.Logger
}

// Execute acquires one browser session, performs the fixed reservation
// sequence and returns the confirmation text. Any step failure aborts the
// attempt; the session is released on every path.
func (e *Executor) Execute(ctx context.Context, profile userstore.Profile, from, to directory.City, travel time.Time) (string, error) {
	date := travel.Format(DateFormat)
	logger := e.logger().With("from", from.Name, "to", to.Name, "date", date)

	session, err := e.Browser.NewSession(ctx, e.Headless)
	if err != nil {
		return "", fmt.Errorf("booking: %w", err)
	}
	defer session.Quit()

	searchURL := fmt.Sprintf(searchURLFormat, from.ID, to.ID, date)
	if err := session.Navigate(searchURL); err != nil {
		return "", fmt.Errorf("booking: open search: %w", err)
	}
	logger.Info("search page loaded", "url", searchURL)

	if err := session.ClickByText("button", reserveLabel); err != nil {
		return "", fmt.Errorf("booking: reserve: %w", err)
	}
	logger.Info("reservation submitted")
	if err := e.pause(ctx); err != nil {
		return "", err
	}

	if err := session.Navigate(cartURL); err != nil {
		return "", fmt.Errorf("booking: open cart: %w", err)
	}

	for _, f := range formFields {
		if err := session.FillByName(f.name, f.value(profile)); err != nil {
			return "", fmt.Errorf("booking: %w", err)
		}
	}
	logger.Info("passenger form filled")
	if err := e.pause(ctx); err != nil {
		return "", err
	}

	if err := session.ClickByText("button", checkoutLabel); err != nil {
		return "", fmt.Errorf("booking: checkout: %w", err)
	}
	if err := e.pause(ctx); err != nil {
		return "", err
	}

	if err := session.ClickByText("button", confirmLabel); err != nil {
		return "", fmt.Errorf("booking: confirm: %w", err)
	}
	logger.Info("purchase confirmed", "email", profile.Email)

	return fmt.Sprintf("Ticket booked from %s to %s on %s\nAn email will be sent to: %s",
		from.Name, to.Name, date, profile.Email), nil
}

func (e *Executor) pause(ctx context.Context) error {
	delay := e.StepDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
