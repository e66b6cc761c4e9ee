package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tebeka/selenium"
)

// DefaultWebDriverURL matches a locally running geckodriver/selenium server.
const DefaultWebDriverURL = "http://localhost:4444"

// SeleniumFactory opens Firefox sessions against a remote WebDriver server.
type SeleniumFactory struct {
	URL         string        // WebDriver endpoint, defaults to DefaultWebDriverURL
	FindTimeout time.Duration // bound on element waits, defaults to 10s
	Logger      *slog.Logger
}

// NewSession starts a fresh Firefox session.
func (f *SeleniumFactory) NewSession(_ context.Context, headless bool) (Session, error) {
	url := f.URL
	if url == "" {
		url = DefaultWebDriverURL
	}

	caps := selenium.Capabilities{"browserName": "firefox"}
	if headless {
		caps["moz:firefoxOptions"] = map[string]any{"args": []string{"-headless"}}
	}

	wd, err := selenium.NewRemote(caps, url)
	if err != nil {
		return nil, fmt.Errorf("browser: new session: %w", err)
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("browser session started", "url", url, "headless", headless)

	timeout := f.FindTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &seleniumSession{wd: wd, timeout: timeout}, nil
}

type seleniumSession struct {
	wd      selenium.WebDriver
	timeout time.Duration
}

func (s *seleniumSession) Navigate(url string) error {
	if err := s.wd.Get(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

func (s *seleniumSession) ClickByText(tag, label string) error {
	var target selenium.WebElement
	err := s.wd.WaitWithTimeout(func(wd selenium.WebDriver) (bool, error) {
		elems, err := wd.FindElements(selenium.ByTagName, tag)
		if err != nil {
			return false, nil
		}
		for _, el := range elems {
			text, err := el.Text()
			if err != nil || !strings.Contains(text, label) {
				continue
			}
			if shown, _ := el.IsDisplayed(); !shown {
				continue
			}
			if enabled, _ := el.IsEnabled(); !enabled {
				continue
			}
			target = el
			return true, nil
		}
		return false, nil
	}, s.timeout)
	if err != nil {
		return fmt.Errorf("browser: no clickable <%s> with text %q: %w", tag, label, err)
	}

	// Best effort; some drivers scroll implicitly on click.
	s.wd.ExecuteScript("arguments[0].scrollIntoView(true);", []any{target})

	if err := target.Click(); err != nil {
		return fmt.Errorf("browser: click %q: %w", label, err)
	}
	return nil
}

func (s *seleniumSession) FillByName(name, value string) error {
	el, err := s.wd.FindElement(selenium.ByName, name)
	if err != nil {
		return fmt.Errorf("browser: field %q not found: %w", name, err)
	}
	if err := el.SendKeys(value); err != nil {
		return fmt.Errorf("browser: fill field %q: %w", name, err)
	}
	return nil
}

func (s *seleniumSession) Quit() error {
	return s.wd.Quit()
}
