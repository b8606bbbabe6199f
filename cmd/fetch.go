package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagewalk/api/schemas"
	"github.com/xkilldash9x/pagewalk/internal/browser/form"
	"github.com/xkilldash9x/pagewalk/internal/browser/session"
	"github.com/xkilldash9x/pagewalk/internal/config"
	"github.com/xkilldash9x/pagewalk/internal/observability"
)

// Sections of a page that --dump can select.
const (
	dumpLinks   = "links"
	dumpForms   = "forms"
	dumpTables  = "tables"
	dumpFrames  = "frames"
	dumpText    = "text"
	dumpCookies = "cookies"
)

var defaultDump = []string{dumpLinks, dumpForms, dumpTables, dumpFrames}

func newFetchCmd() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch [urls...]",
		Short: "Loads each URL in its own conversation and prints what a browser would see",
		Long: `Loads each URL in an independent conversation, following redirects, loading
frames and running page scripts as configured, then prints a JSON summary of the
resulting page. Failures are reported per URL and do not stop the other fetches.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			fc, err := fetchConfigFromFlags(cmd, args)
			if err != nil {
				return err
			}
			cfg.SetFetchConfig(fc)
			return runFetch(cmd.Context(), cfg, observability.GetLogger(), cmd.OutOrStdout())
		},
	}

	fetchCmd.Flags().StringP("output", "o", "", "write the JSON summary to this file instead of stdout")
	fetchCmd.Flags().String("har", "", "write all traffic as a HAR log to this file")
	fetchCmd.Flags().IntP("concurrency", "j", 4, "number of URLs fetched at once")
	fetchCmd.Flags().StringSlice("dump", defaultDump, "sections to include: links, forms, tables, frames, text, cookies")

	fetchCmd.Flags().Int("max-redirects", 10, "maximum redirects followed per request")
	fetchCmd.Flags().String("user-agent", "pagewalk/1.0", "User-Agent header")
	fetchCmd.Flags().Bool("auto-refresh", false, "follow meta refresh and Refresh headers")
	fetchCmd.Flags().Bool("scripts", true, "run page scripts")
	fetchCmd.Flags().String("user", "", "username for Basic authentication (password from PAGEWALK_AUTH_PASSWORD)")
	fetchCmd.Flags().Bool("fail-on-status", true, "treat 4xx and 5xx responses as errors")
	fetchCmd.Flags().Duration("timeout", 30*time.Second, "per-request network timeout")
	fetchCmd.Flags().Bool("insecure", false, "skip TLS certificate verification")
	return fetchCmd
}

func fetchConfigFromFlags(cmd *cobra.Command, args []string) (config.FetchConfig, error) {
	flags := cmd.Flags()
	fc := config.FetchConfig{Targets: args}
	var err error
	if fc.Output, err = flags.GetString("output"); err != nil {
		return fc, err
	}
	if fc.HAROutput, err = flags.GetString("har"); err != nil {
		return fc, err
	}
	if fc.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return fc, err
	}
	if fc.Dump, err = flags.GetStringSlice("dump"); err != nil {
		return fc, err
	}
	for _, section := range fc.Dump {
		switch section {
		case dumpLinks, dumpForms, dumpTables, dumpFrames, dumpText, dumpCookies:
		default:
			return fc, fmt.Errorf("unknown dump section %q", section)
		}
	}
	return fc, nil
}

// runFetch loads every target concurrently and writes the summaries in
// argument order.
func runFetch(ctx context.Context, cfg config.Interface, logger *zap.Logger, stdout io.Writer) error {
	fc := cfg.Fetch()
	if fc.Concurrency <= 0 {
		fc.Concurrency = 1
	}
	logger = logger.Named("fetch")

	summaries := make([]schemas.PageSummary, len(fc.Targets))
	harvesters := make([]*session.Harvester, len(fc.Targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fc.Concurrency)
	for i, target := range fc.Targets {
		i, target := i, target
		var opts []session.Option
		if fc.HAROutput != "" {
			harvesters[i] = session.NewHarvester(logger, true)
			opts = append(opts, session.WithListener(harvesters[i]))
		}
		g.Go(func() error {
			summaries[i] = fetchOne(gctx, cfg, logger, target, fc.Dump, opts...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if fc.HAROutput != "" {
		if err := writeJSON(fc.HAROutput, nil, mergeHAR(harvesters)); err != nil {
			return fmt.Errorf("failed to write HAR: %w", err)
		}
		logger.Info("HAR written", zap.String("path", fc.HAROutput))
	}

	var failed int
	for _, s := range summaries {
		if s.Error != "" {
			failed++
		}
	}
	if err := writeJSON(fc.Output, stdout, summaries); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if failed == len(summaries) {
		return fmt.Errorf("all %d fetches failed", failed)
	}
	return nil
}

// fetchOne runs a single conversation. Errors are recorded in the summary.
func fetchOne(ctx context.Context, cfg config.Interface, logger *zap.Logger, target string, dump []string, opts ...session.Option) schemas.PageSummary {
	summary := schemas.PageSummary{URL: target, FetchedAt: time.Now().UTC()}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	conv, err := session.New(ctx, cfg, logger, opts...)
	if err != nil {
		summary.Error = err.Error()
		return summary
	}
	defer conv.Close()

	resp, err := conv.GetResponse(ctx, target)
	if err != nil {
		logger.Warn("Fetch failed", zap.String("url", target), zap.Error(err))
		summary.Error = err.Error()
		// An error status still carries the page the server sent.
		var statusErr *session.HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.Response == nil {
			return summary
		}
		resp = statusErr.Response
	} else {
		logger.Info("Fetched", zap.String("url", target), zap.Int("status", resp.Status))
	}

	summary.FinalURL = resp.URL.String()
	summary.Status = resp.Status
	summary.ContentType = resp.ContentType
	summary.Title = resp.Title()
	for _, e := range conv.ScriptErrors() {
		summary.ScriptErrors = append(summary.ScriptErrors, e.Error())
	}

	if slices.Contains(dump, dumpLinks) {
		summary.Links = summarizeLinks(resp)
	}
	if slices.Contains(dump, dumpForms) {
		summary.Forms = summarizeForms(resp.Forms())
	}
	if slices.Contains(dump, dumpTables) && resp.IsMarkup() {
		for _, t := range resp.Document.TopLevelTables() {
			summary.Tables = append(summary.Tables, t.AsText())
		}
	}
	if slices.Contains(dump, dumpFrames) {
		summary.Frames = summarizeFrames(resp.Window())
	}
	if slices.Contains(dump, dumpText) {
		summary.Text = resp.Text()
	}
	if slices.Contains(dump, dumpCookies) {
		for _, c := range conv.Cookies(resp.URL) {
			hc := schemas.HARCookie{
				Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain,
				HTTPOnly: c.HTTPOnly, Secure: c.Secure,
			}
			if !c.Expires.IsZero() {
				hc.Expires = c.Expires.UTC().Format(time.RFC3339)
			}
			summary.Cookies = append(summary.Cookies, hc)
		}
	}
	return summary
}

func summarizeLinks(resp *session.Response) []schemas.LinkSummary {
	var out []schemas.LinkSummary
	for _, l := range resp.Links() {
		ls := schemas.LinkSummary{Text: strings.TrimSpace(l.Text), Href: l.Href, Target: l.Target}
		if l.URL != nil {
			ls.URL = l.URL.String()
		}
		out = append(out, ls)
	}
	return out
}

func summarizeForms(forms []*form.Form) []schemas.FormSummary {
	var out []schemas.FormSummary
	for _, f := range forms {
		fs := schemas.FormSummary{
			Name:       f.Name(),
			ID:         f.ID(),
			Method:     f.Method(),
			Action:     f.Action().String(),
			Enctype:    f.Enctype().String(),
			Target:     f.Target(),
			Parameters: []schemas.NVPair{},
		}
		for _, p := range f.Parameters() {
			value := p.Value
			if p.File != nil {
				value = p.File.Name
			}
			fs.Parameters = append(fs.Parameters, schemas.NVPair{Name: p.Name, Value: value})
		}
		for _, b := range f.SubmitButtons() {
			fs.Buttons = append(fs.Buttons, b.Name())
		}
		out = append(out, fs)
	}
	return out
}

func summarizeFrames(w *session.Window) []schemas.FrameSummary {
	if w == nil {
		return nil
	}
	var out []schemas.FrameSummary
	for _, f := range w.Frames() {
		if f.IsTop() {
			continue
		}
		fs := schemas.FrameSummary{Selector: string(f.Selector()), Name: f.Name()}
		if r := f.Response(); r != nil {
			fs.URL = r.URL.String()
			fs.Title = r.Title()
		}
		out = append(out, fs)
	}
	return out
}

// mergeHAR combines the per-conversation logs into one.
func mergeHAR(harvesters []*session.Harvester) *schemas.HAR {
	merged := schemas.NewHAR()
	for _, h := range harvesters {
		if h == nil {
			continue
		}
		har := h.GenerateHAR()
		merged.Log.Pages = append(merged.Log.Pages, har.Log.Pages...)
		merged.Log.Entries = append(merged.Log.Entries, har.Log.Entries...)
	}
	return merged
}

// writeJSON writes v to path, or to fallback when path is empty. A leading ~
// in path is expanded.
func writeJSON(path string, fallback io.Writer, v interface{}) error {
	var w io.Writer = fallback
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return err
		}
		if dir := filepath.Dir(expanded); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(expanded)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
