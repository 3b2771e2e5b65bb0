package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srmooon/vcnarrator/internal/app"
	"github.com/srmooon/vcnarrator/internal/readiness"
	"github.com/srmooon/vcnarrator/internal/settings"
	"github.com/srmooon/vcnarrator/ui"
)

const securityNotice = `This will download and install the following components:

  • Python Embedded (~20MB), required to run SAPI5
  • pywin32, the bridge to the Windows speech API

A local server will run on your machine to communicate with Windows SAPI5
voices. No data is sent to external servers, everything runs locally.`

var (
	setupYes    bool
	statusWatch bool
	statusJSON  bool

	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Install and start the SAPI5 helper",
		Long: paragraph(fmt.Sprintf("\n%s the embedded interpreter, the speech bridge and the control script, then start the helper and switch the provider to SAPI5.",
			keyword("Download"))),
		Example: paragraph("vcnarrator setup\nvcnarrator setup --yes"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !setupYes {
				if !term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec
					return errors.New("stdin is not a terminal: pass --yes to install without confirmation")
				}
				ok, err := confirm(os.Stdin, os.Stdout, securityNotice)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Setup cancelled.")
					return nil
				}
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			snap, err := a.Reconciler.Install(cmd.Context())
			fmt.Println(ui.Render(report(a, snap), termWidth()))
			return err
		},
	}

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the SAPI5 helper if it is installed and not running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			snap, err := a.Reconciler.Check(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ui.Compact(snap))
			if snap.State != readiness.Ready {
				return snapshotError(snap)
			}
			return nil
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Ask the SAPI5 helper to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if !a.Client.IsServerRunning(cmd.Context()) {
				fmt.Println("Helper is not running.")
				return nil
			}
			a.Client.Shutdown(cmd.Context())
			fmt.Println("Helper stopped.")
			return nil
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Check the SAPI5 helper, starting it when it is installed",
		Long: paragraph(fmt.Sprintf("\n%s whether the helper answers. An installed helper that is not running is started, and a SAPI5 provider falls back to the system voice when the helper is unavailable.",
			keyword("Check"))),
		Example: paragraph("vcnarrator status\nvcnarrator status --watch\nvcnarrator status --json"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if statusWatch && statusJSON {
				return errors.New("--watch and --json cannot be combined")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			if statusWatch {
				return ui.Watch(appWatcher{a}, a.Signal)
			}

			snap, err := a.Reconciler.Check(cmd.Context())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeStatusJSON(os.Stdout, report(a, snap))
			}
			fmt.Println(ui.Render(report(a, snap), termWidth()))
			return nil
		},
	}

	uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the SAPI5 helper and remove its files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			snap, err := a.Reconciler.Uninstall(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ui.Compact(snap))
			if snap.Err != nil {
				fmt.Fprintln(os.Stderr, warning("Some files could not be removed: "+snap.Err.Error()))
			}
			return nil
		},
	}

	providerCmd = &cobra.Command{
		Use:       "provider [system|sapi5]",
		Short:     "Show or change the speech provider",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(settings.ProviderSystem), string(settings.ProviderSAPI5)},
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Println(a.Settings.Provider())
				return nil
			}
			p, err := settings.ParseProvider(args[0])
			if err != nil {
				return err
			}
			if err := a.Reconciler.SelectProvider(p); err != nil {
				return err
			}
			fmt.Println("Provider set to", keyword(string(p)))
			return nil
		},
	}
)

func init() {
	setupCmd.Flags().BoolVarP(&setupYes, "yes", "y", false, "skip the confirmation prompt")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "follow readiness in a live view")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
}

// appWatcher feeds the live status view.
type appWatcher struct {
	a *app.App
}

func (w appWatcher) Report(s readiness.Snapshot) ui.Report {
	return report(w.a, s)
}

func (w appWatcher) Recheck(ctx context.Context) {
	_, _ = w.a.Reconciler.Check(ctx)
}

func report(a *app.App, s readiness.Snapshot) ui.Report {
	r := ui.Report{Snapshot: s, Layout: a.Layout, Provider: a.Settings.Provider()}
	if a.Supervisor.Running() {
		r.PID = a.Supervisor.PID()
	}
	return r
}

// confirm shows notice and reads a yes/no answer. Anything but y or yes is
// a no.
func confirm(in io.Reader, out io.Writer, notice string) (bool, error) {
	fmt.Fprintln(out, warning("Security notice"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, notice)
	fmt.Fprintln(out)
	fmt.Fprint(out, "Do you want to continue? [y/N] ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("unable to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

type statusView struct {
	State     string `json:"state"`
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	PID       int    `json:"pid,omitempty"`
	Installed any    `json:"installed"`
	Voices    any    `json:"voices"`
	Error     string `json:"error,omitempty"`
}

func writeStatusJSON(w io.Writer, r ui.Report) error {
	v := statusView{
		State:     r.Snapshot.State.String(),
		Status:    r.Snapshot.Status,
		Provider:  string(r.Provider),
		PID:       r.PID,
		Installed: r.Snapshot.Installed.View(),
		Voices:    r.Snapshot.Voices,
	}
	if len(r.Snapshot.Voices) == 0 {
		v.Voices = []struct{}{}
	}
	if r.Snapshot.Err != nil {
		v.Error = r.Snapshot.Err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func snapshotError(s readiness.Snapshot) error {
	if s.Err != nil {
		return fmt.Errorf("%s: %w", s.Status, s.Err)
	}
	return errors.New(s.Status)
}

// termWidth is the width of stdout, or 0 when it is not a terminal.
func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd())) //nolint:gosec
	if err != nil {
		return 0
	}
	return w
}
