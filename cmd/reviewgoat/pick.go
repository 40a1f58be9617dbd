package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/fetcher"
	"github.com/IshaanNene/ReviewGoat/internal/picker"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

var (
	pickFlags  scrapeFlags
	pickFields []string
	pickSave   string
)

// pickTarget is one selector the user can pick, with the config key it
// is stored under.
type pickTarget struct {
	name string
	key  string
	mode picker.Mode
	dst  func(*config.ScrapeConfig) *string
}

var pickTargets = []pickTarget{
	{"item", "scrape.item_selector", picker.ModeCollection, func(s *config.ScrapeConfig) *string { return &s.ItemSelector }},
	{"user", "scrape.fields.user", picker.ModeRelative, func(s *config.ScrapeConfig) *string { return &s.Fields.User }},
	{"date", "scrape.fields.date", picker.ModeRelative, func(s *config.ScrapeConfig) *string { return &s.Fields.Date }},
	{"rating", "scrape.fields.rating", picker.ModeRelative, func(s *config.ScrapeConfig) *string { return &s.Fields.Rating }},
	{"title", "scrape.fields.title", picker.ModeRelative, func(s *config.ScrapeConfig) *string { return &s.Fields.Title }},
	{"content", "scrape.fields.content", picker.ModeRelative, func(s *config.ScrapeConfig) *string { return &s.Fields.Content }},
	{"next", "scrape.next_selector", picker.ModeAbsolute, func(s *config.ScrapeConfig) *string { return &s.NextSelector }},
}

func targetNames() []string {
	names := make([]string, len(pickTargets))
	for i, t := range pickTargets {
		names[i] = t.name
	}
	return names
}

// pickCmd creates the "pick" subcommand.
func pickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pick [url]",
		Short: "Pick selectors by clicking elements in a browser window",
		Long: `Open url in a browser window and build selectors from clicks.

For each requested field, hover the element (it is outlined) and click it.
Press Escape to skip a field. Field selectors are generated relative to the
review container, the next control gets a document-wide selector.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPick,
	}
	registerScrapeFlags(cmd, &pickFlags)
	cmd.Flags().StringSliceVar(&pickFields, "fields", targetNames(), "fields to pick, in order")
	cmd.Flags().StringVar(&pickSave, "save", "", "write the picked selectors into this config file")
	return cmd
}

func runPick(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	targets, err := selectTargets(pickFields)
	if err != nil {
		return err
	}

	pickFlags.driver = "browser"
	s, err := openSession(ctx, cmd, &pickFlags, args)
	if err != nil {
		return err
	}
	defer s.Close()

	page, ok := s.driver.(*fetcher.BrowserPage)
	if !ok {
		return fmt.Errorf("pick needs the browser driver, got %s", s.driver.Type())
	}

	containers := []string{s.cfg.Scrape.ItemSelector}
	if p, ok, _ := s.cfg.Scrape.ResolvePreset(); ok {
		containers = append(containers, p.ContainerSelector)
	}

	picked := map[string]string{}
	for _, t := range targets {
		pk := picker.NewPicker(s.logger, containers...)

		fmt.Fprintf(os.Stderr, "👉 Click the %s element (Esc to skip)\n", t.name)
		res, err := pickOnce(ctx, page, pk, t.mode)
		if errors.Is(err, types.ErrPickCancelled) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "   skipped %s\n", t.name)
			continue
		}
		if err != nil {
			return fmt.Errorf("pick %s: %w", t.name, err)
		}

		*t.dst(&s.cfg.Scrape) = res.Selector
		picked[t.key] = res.Selector
		fmt.Fprintf(os.Stderr, "   %s: %s (%s)\n", t.name, res.Selector, res.Mode)

		if t.name == "item" {
			containers = append([]string{res.Selector}, containers...)
		}
	}

	if len(picked) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing picked.")
		return nil
	}

	fmt.Println("scrape:")
	fmt.Printf("  url: %q\n", s.cfg.Scrape.URL)
	for _, t := range pickTargets {
		if sel, ok := picked[t.key]; ok {
			fmt.Printf("  %s: %q\n", strings.TrimPrefix(t.key, "scrape."), sel)
		}
	}

	if pickSave != "" {
		if err := saveSelectors(pickSave, s.cfg.Scrape.URL, picked); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\n💾 Saved to %s\n", pickSave)
	}
	return nil
}

// pickOnce arms the page picker for a single pick.
func pickOnce(ctx context.Context, page *fetcher.BrowserPage, pk *picker.Picker, mode picker.Mode) (picker.Result, error) {
	events, disarm, err := page.PickEvents(ctx)
	if err != nil {
		return picker.Result{}, err
	}
	defer disarm()
	return pk.Pick(ctx, events, mode)
}

func selectTargets(names []string) ([]pickTarget, error) {
	var out []pickTarget
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		found := false
		for _, t := range pickTargets {
			if t.name == name {
				out = append(out, t)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown field %q (valid: %s)", name, strings.Join(targetNames(), ", "))
		}
	}
	return out, nil
}

// saveSelectors merges picked selectors into the config file at path,
// keeping any other settings already there.
func saveSelectors(path, url string, picked map[string]string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}
	v.Set("scrape.url", url)
	for key, sel := range picked {
		v.Set(key, sel)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
