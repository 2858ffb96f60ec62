package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"chemviz/internal/config"
	"chemviz/internal/dashboard"
	"chemviz/internal/export"
	"chemviz/internal/handlers"
	"chemviz/internal/notify"
	"chemviz/internal/tui"
)

// parse runs fs over args and maps flag errors onto errUsage.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "Username")
	password := fs.String("password", "", "Password (prompted when empty)")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *username == "" {
		v, err := prompt("Username: ")
		if err != nil {
			return err
		}
		*username = v
	}
	if *password == "" {
		v, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		*password = v
	}

	if err := a.state.Login(ctx, *username, *password); err != nil {
		config.Logger.Warnf("⚠️  Credentials not persisted: %v", err)
	}
	snap := a.state.Snapshot()
	if !snap.Authenticated {
		return fmt.Errorf("login: %w", errRejected)
	}

	fmt.Printf("✅ Signed in as %s\n", *username)
	if snap.Report != nil {
		fmt.Printf("   Latest dataset: %s (%d rows)\n", snap.Report.FileName, snap.Report.TotalCount)
	} else if snap.Error != "" {
		fmt.Printf("   %s\n", snap.Error)
	}
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if err := a.state.Logout(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Println("👋 Signed out")
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	signedIn := "no"
	if a.session.Authenticated() {
		signedIn = "yes"
	}
	fmt.Fprintf(w, "Signed in:\t%s\n", signedIn)
	fmt.Fprintf(w, "Backend:\t%s\n", a.client.BaseURL())
	fmt.Fprintf(w, "Data dir:\t%s\n", a.cfg.DataDir)
	fmt.Fprintf(w, "Token sealed:\t%t\n", a.cfg.SealToken)
	fmt.Fprintf(w, "Notify targets:\t%d\n", len(a.cfg.Notify.URLs))
	fmt.Fprintf(w, "Version:\t%s\n", handlers.Version)
	return w.Flush()
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.state.FetchHistory(ctx); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	history := a.state.Snapshot().History
	if len(history) == 0 {
		fmt.Println("No uploads yet.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tUPLOADED\tROWS")
	for _, h := range history {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", h.ID, h.FileName, humanize.Time(h.UploadedAt), h.TotalCount)
	}
	return w.Flush()
}

// loadSummary fetches the dataset named by id, or the latest one when id <= 0.
func loadSummary(ctx context.Context, a *app, id int64) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	var ref *int64
	if id > 0 {
		ref = &id
	}
	if err := a.state.FetchSummary(ctx, ref); err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	return nil
}

func cmdSummary(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	id := fs.Int64("id", 0, "Dataset id (latest when 0)")
	search := fs.String("search", "", "Filter rows by name or type")
	output := fs.String("o", "table", "Output: table, json or yaml")
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := loadSummary(ctx, a, *id); err != nil {
		return err
	}
	a.state.SetSearch(*search)
	snap := a.state.Snapshot()

	switch *output {
	case "table":
		printSummary(os.Stdout, snap)
		return nil
	case "json", "yaml":
		f, _ := export.ParseFormat(*output)
		return export.Write(os.Stdout, f, snap.Report, snap.Search, snap.VisibleRows)
	default:
		fmt.Fprintf(os.Stderr, "unknown output %q\n", *output)
		return errUsage
	}
}

func printSummary(out io.Writer, snap dashboard.Snapshot) {
	r := snap.Report
	fmt.Fprintf(out, "📊 %s (dataset %d)\n\n", r.FileName, r.ID)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Total equipment:\t%d\n", r.TotalCount)
	fmt.Fprintf(w, "Avg flowrate:\t%s\n", humanize.FormatFloat("#,###.#", r.Averages.Flowrate))
	fmt.Fprintf(w, "Avg pressure:\t%s\n", humanize.FormatFloat("#,###.##", r.Averages.Pressure))
	fmt.Fprintf(w, "Avg temperature:\t%s\n", humanize.FormatFloat("#,###.#", r.Averages.Temperature))
	for _, t := range sortedTypes(r.TypeDistribution) {
		fmt.Fprintf(w, "  %s:\t%d\n", t, r.TypeDistribution[t])
	}
	w.Flush()
	fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(export.Header, "\t"))
	for _, row := range snap.VisibleRows {
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\n", row.Name, row.Type, row.Flowrate, row.Pressure, row.Temperature)
	}
	if snap.NoMatches {
		fmt.Fprintln(w, dashboard.NoMatchesPlaceholder)
	}
	w.Flush()
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: chemviz upload <file.csv>")
		return errUsage
	}
	if err := a.requireSession(); err != nil {
		return err
	}

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Println("⏳ Calculating the Result...")
	if err := a.state.Upload(ctx, path, f); err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}

	snap := a.state.Snapshot()
	fmt.Printf("✅ Uploaded %s\n", filepath.Base(path))
	if snap.Report != nil {
		fmt.Printf("   Dataset %d: %d rows, %d types\n",
			snap.Report.ID, snap.Report.TotalCount, len(snap.Report.TypeDistribution))
	}
	return nil
}

func cmdReport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	id := fs.Int64("id", 0, "Dataset id (latest when 0)")
	dir := fs.String("dir", ".", "Directory to write report_<id>.pdf into")
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := loadSummary(ctx, a, *id); err != nil {
		return err
	}
	path, err := a.state.DownloadReport(ctx, *dir)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	size := ""
	if fi, err := os.Stat(path); err == nil {
		size = " (" + humanize.Bytes(uint64(fi.Size())) + ")"
	}
	fmt.Printf("📄 Saved %s%s\n", path, size)
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	id := fs.Int64("id", 0, "Dataset id (latest when 0)")
	search := fs.String("search", "", "Filter rows by name or type")
	format := fs.String("format", "csv", "csv, xlsx, json or yaml")
	output := fs.String("o", "", "Output file, - for stdout (default equipment_<id>.<format>)")
	if err := parse(fs, args); err != nil {
		return err
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return errUsage
	}

	if err := loadSummary(ctx, a, *id); err != nil {
		return err
	}
	a.state.SetSearch(*search)
	snap := a.state.Snapshot()

	if *output == "-" {
		return export.Write(os.Stdout, f, snap.Report, snap.Search, snap.VisibleRows)
	}
	path := *output
	if path == "" {
		path = f.Filename(snap.Report.ID)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(out, f, snap.Report, snap.Search, snap.VisibleRows); err != nil {
		out.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Printf("💾 Wrote %d rows to %s\n", len(snap.VisibleRows), path)
	return nil
}

func cmdTUI(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	dir := fs.String("dir", ".", "Directory reports are saved into")
	if err := parse(fs, args); err != nil {
		return err
	}

	// keep log lines from tearing the alt screen
	config.Logger.SetOutput(io.Discard)
	p := tea.NewProgram(tui.New(ctx, a.state, *dir), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", a.cfg.Listen, "Address to serve the dashboard on")
	if err := parse(fs, args); err != nil {
		return err
	}

	srv, err := handlers.NewServer(a.state, a.registry)
	if err != nil {
		return err
	}
	if a.session.Authenticated() {
		go a.state.Refresh(ctx)
	}
	return srv.Run(ctx, *listen)
}

func cmdNotify(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: chemviz notify test|history [-n N]")
		return errUsage
	}

	switch args[0] {
	case "test":
		if err := a.notifier.SendTest(); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		fmt.Printf("📣 Test notification sent to %d target(s)\n", len(a.cfg.Notify.URLs))
		return nil

	case "history":
		fs := flag.NewFlagSet("notify history", flag.ContinueOnError)
		limit := fs.Int("n", 20, "Number of entries")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		records, err := notify.RecentHistory(a.db, *limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No notifications sent yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tEVENT\tSTATUS\tTARGET\tMESSAGE")
		for _, r := range records {
			status := r.Status
			if r.ErrorMessage != "" {
				status += ": " + r.ErrorMessage
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				humanize.Time(r.CreatedAt), r.EventType, status, r.Target, r.Message)
		}
		return w.Flush()

	default:
		fmt.Fprintf(os.Stderr, "unknown notify command %q\n", args[0])
		return errUsage
	}
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func sortedTypes(dist map[string]int) []string {
	types := make([]string, 0, len(dist))
	for t := range dist {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
