package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/srmooon/vcnarrator/internal/narrator"
	"github.com/srmooon/vcnarrator/internal/settings"
)

var (
	narrateDirectory string

	narrateCmd = &cobra.Command{
		Use:   "narrate",
		Short: "Announce voice channel events read from stdin",
		Long: paragraph(fmt.Sprintf("\n%s voice state batches, one JSON object per line, and announces joins, leaves, moves, mutes and deafens in the current voice channel. Users, nicknames and channels come from the --directory snapshot.",
			keyword("Reads"))),
		Example: paragraph(`vcnarrator narrate --directory guild.json < events.jsonl

  {"voiceStates":[{"userId":"2","channelId":"10"}]}
  {"stop":true}`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := narrator.LoadDirectory(narrateDirectory)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			go func() {
				if err := a.Settings.Watch(ctx); err != nil {
					log.Warn("Not watching settings", "error", err)
				}
			}()
			if a.Settings.Provider() == settings.ProviderSAPI5 {
				if _, err := a.Reconciler.Check(ctx); err != nil {
					log.Warn("Readiness check skipped", "error", err)
				}
			}

			d, err := a.Dispatcher()
			if err != nil {
				return err
			}
			for _, k := range narrator.EventKinds {
				log.Debug("Announcing", "event", k, "template", a.Settings.Template(string(k)))
			}
			n := narrator.New(dir, a.Settings, d, log.Default())
			n.Seed()

			err = narrate(ctx, os.Stdin, dir, n, d)
			_ = waitForSilence(ctx, d)
			return err
		},
	}
)

func init() {
	narrateCmd.Flags().StringVarP(&narrateDirectory, "directory", "d", "", "JSON snapshot of users, channels and voice states")
	_ = narrateCmd.MarkFlagRequired("directory")
}

// event is one line of narrate input.
type event struct {
	VoiceStates []narrator.VoiceState `json:"voiceStates"`
	Stop        bool                  `json:"stop"`
}

type stopper interface {
	Stop(ctx context.Context)
}

// narrate feeds every line of r to n until r ends or ctx is done. Bad lines
// are logged and skipped.
func narrate(ctx context.Context, r io.Reader, dir *narrator.StaticDirectory, n *narrator.Narrator, s stopper) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for line := 1; sc.Scan(); line++ {
		if ctx.Err() != nil {
			return nil
		}
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}

		var ev event
		if err := json.Unmarshal(b, &ev); err != nil {
			log.Warn("Skipping malformed event", "line", line, "error", err)
			continue
		}
		if ev.Stop {
			s.Stop(ctx)
		}
		if len(ev.VoiceStates) > 0 {
			// the directory follows the batch before it is announced
			dir.Apply(ev.VoiceStates)
			n.HandleVoiceStates(ctx, ev.VoiceStates)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("unable to read events: %w", err)
	}
	return nil
}
