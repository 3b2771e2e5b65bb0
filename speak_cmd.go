package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/srmooon/vcnarrator/internal/narrator"
	"github.com/srmooon/vcnarrator/internal/protocol"
	"github.com/srmooon/vcnarrator/internal/settings"
)

var (
	voicesSelect string
	voicesSystem bool
	speakUseClip bool
	speakVoice   string

	voicesCmd = &cobra.Command{
		Use:   "voices",
		Short: "List voices, or pick one by name",
		Long: paragraph(fmt.Sprintf("\n%s the voices of the SAPI5 helper, or of the system engine with --system. With --select the best fuzzy match becomes the voice of that provider.",
			keyword("List"))),
		Example: paragraph("vcnarrator voices\nvcnarrator voices --select zira\nvcnarrator voices --system --select english"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			var voices []protocol.Voice
			if voicesSystem {
				sys, err := a.System()
				if err != nil {
					return err
				}
				if voices, err = sys.Voices(cmd.Context()); err != nil {
					return err
				}
			} else {
				if !a.Client.IsServerRunning(cmd.Context()) {
					return errors.New("the SAPI5 helper is not running: try `vcnarrator start`")
				}
				voices = a.Client.GetVoices(cmd.Context())
			}

			if voicesSelect == "" {
				for _, v := range voices {
					fmt.Printf("%s\t%s\n", v.ID, v.Name)
				}
				return nil
			}

			v, ok := pickVoice(voices, voicesSelect)
			if !ok {
				return fmt.Errorf("no voice matches %q", voicesSelect)
			}
			if err := a.Settings.Update(func(s *settings.Settings) {
				if voicesSystem {
					s.SystemVoice = v.ID
				} else {
					s.SAPI5Voice = v.ID
				}
			}); err != nil {
				return err
			}
			fmt.Println("Voice set to", keyword(v.Name))
			return nil
		},
	}

	speakCmd = &cobra.Command{
		Use:   "speak [text]",
		Short: "Say text with the current provider",
		Long: paragraph(fmt.Sprintf("\n%s text through the SAPI5 helper when it is selected and running, and through the system voice otherwise.",
			keyword("Speak"))),
		Example: paragraph("vcnarrator speak \"hello there\"\nvcnarrator speak --clipboard"),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if speakUseClip {
				clip, err := clipboard.ReadAll()
				if err != nil {
					return fmt.Errorf("unable to read clipboard: %w", err)
				}
				text = clip
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to say")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			if speakVoice != "" {
				voice := speakVoice
				if err := a.Settings.Update(func(s *settings.Settings) {
					if s.Provider == settings.ProviderSAPI5 {
						s.SAPI5Voice = voice
					} else {
						s.SystemVoice = voice
					}
				}); err != nil {
					return err
				}
			}
			if a.Settings.Provider() == settings.ProviderSAPI5 {
				if _, err := a.Reconciler.Check(cmd.Context()); err != nil {
					return err
				}
			}

			d, err := a.Dispatcher()
			if err != nil {
				return err
			}
			d.Speak(cmd.Context(), text)
			return waitForSilence(cmd.Context(), d)
		},
	}
)

func init() {
	voicesCmd.Flags().StringVarP(&voicesSelect, "select", "s", "", "fuzzy voice name to select")
	voicesCmd.Flags().BoolVar(&voicesSystem, "system", false, "use the system engine's voices")
	speakCmd.Flags().BoolVarP(&speakUseClip, "clipboard", "c", false, "say the clipboard contents")
	speakCmd.Flags().StringVar(&speakVoice, "voice", "", "voice id to use and remember")
}

type voiceSource []protocol.Voice

func (v voiceSource) String(i int) string { return v[i].Name }
func (v voiceSource) Len() int            { return len(v) }

// pickVoice returns the voice whose id equals query, or the best fuzzy
// match on the names.
func pickVoice(voices []protocol.Voice, query string) (protocol.Voice, bool) {
	for _, v := range voices {
		if v.ID == query {
			return v, true
		}
	}
	matches := fuzzy.FindFrom(query, voiceSource(voices))
	if len(matches) == 0 {
		return protocol.Voice{}, false
	}
	return voices[matches[0].Index], true
}

// waitForSilence blocks until the local voice has finished. The helper plays
// on its own, so only the system voice is waited for. An interrupt stops
// speech.
func waitForSilence(ctx context.Context, d *narrator.Dispatcher) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for d.Speaking() {
		select {
		case <-ctx.Done():
			d.Stop(context.Background())
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
