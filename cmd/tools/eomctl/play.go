package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/pacing"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
)

const cliSession = "eomctl"

type turnOptions struct {
	personaID   string
	emotion     string
	intensity   int
	userMessage string
	tablePath   string
}

func (o *turnOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.personaID, "persona", "p", "bonnie", "persona whose defaults apply")
	cmd.Flags().StringVarP(&o.emotion, "emotion", "e", "", "override the turn emotion")
	cmd.Flags().IntVarP(&o.intensity, "intensity", "i", 0, "override the turn intensity (1-4)")
	cmd.Flags().StringVarP(&o.userMessage, "user", "u", "", "user message the reply answers")
	cmd.Flags().StringVar(&o.tablePath, "table", "", "pacing table YAML (default: built-in)")
}

func (o *turnOptions) service(opts ...sequencer.Option) (*playback.Service, error) {
	cfg := sequencer.DefaultConfig()
	if o.tablePath != "" {
		table, err := pacing.LoadTable(o.tablePath)
		if err != nil {
			return nil, err
		}
		cfg.Policy.Table = table
	}
	return playback.NewService(playback.Config{Sequencer: cfg, SequencerOptions: opts}), nil
}

func (o *turnOptions) turn(svc *playback.Service, text string) (sequencer.Turn, error) {
	if o.intensity != 0 && (o.intensity < pacing.MinIntensity || o.intensity > pacing.MaxIntensity) {
		return sequencer.Turn{}, fmt.Errorf("intensity must be between %d and %d", pacing.MinIntensity, pacing.MaxIntensity)
	}
	p, ok := persona.NewMemoryStore(persona.Seed()).FindByID(o.personaID)
	if !ok {
		return sequencer.Turn{}, fmt.Errorf("unknown persona %q", o.personaID)
	}

	turn := svc.BuildTurn(cliSession, p, chat.Reply{Message: text}, o.userMessage)
	if o.emotion != "" {
		turn.Emotion = o.emotion
	}
	if o.intensity != 0 {
		turn.Intensity = o.intensity
	}
	return turn, nil
}

func newPlanCmd() *cobra.Command {
	var opts turnOptions
	cmd := &cobra.Command{
		Use:   "plan [reply]",
		Short: "Show the waits each part of a reply would get",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			svc, err := opts.service()
			if err != nil {
				return err
			}
			turn, err := opts.turn(svc, text)
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), turn, svc.Plan(turn))
		},
	}
	opts.bind(cmd)
	return cmd
}

func writePlan(w io.Writer, turn sequencer.Turn, steps []sequencer.Step) error {
	fmt.Fprintf(w, "emotion=%s intensity=%d parts=%d\n\n", turn.Emotion, turn.Intensity, len(steps))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tWAIT\tAFTER\tSPEED\tEMOTION\tCONTENT")
	var total time.Duration
	for _, step := range steps {
		total += step.Wait + step.After
		fmt.Fprintf(tw, "%d/%d\t%s\t%s\t%s\t%s\t%s\n",
			step.Part.SequenceIndex, step.Part.SequenceTotal,
			step.Wait.Round(time.Millisecond), step.After,
			step.Part.Speed, step.Part.Emotion, step.Part.Content)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\ntotal %s\n", total.Round(time.Millisecond))
	return err
}

// writerSink prints parts as the sequencer releases them.
type writerSink struct {
	w     io.Writer
	start time.Time
}

func (s *writerSink) SetComposing(on bool) {
	if on {
		fmt.Fprintf(s.w, "[%6s] ...\n", s.elapsed())
	}
}

func (s *writerSink) Append(_ context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	_, err := fmt.Fprintf(s.w, "[%6s] %s\n", s.elapsed(), entry.Text)
	return entry, err
}

func (s *writerSink) elapsed() time.Duration {
	return time.Since(s.start).Round(100 * time.Millisecond)
}

func newPlayCmd() *cobra.Command {
	var (
		opts  turnOptions
		scale float64
	)
	cmd := &cobra.Command{
		Use:   "play [reply]",
		Short: "Replay a reply in real time",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			if scale < 0 {
				return fmt.Errorf("scale must not be negative")
			}
			sleep := func(ctx context.Context, d time.Duration) error {
				return sequencer.Sleep(ctx, time.Duration(float64(d)*scale))
			}
			svc, err := opts.service(sequencer.WithSleep(sleep))
			if err != nil {
				return err
			}
			turn, err := opts.turn(svc, text)
			if err != nil {
				return err
			}
			return svc.Deliver(cmd.Context(), turn, &writerSink{w: cmd.OutOrStdout(), start: time.Now()})
		},
	}
	opts.bind(cmd)
	cmd.Flags().Float64Var(&scale, "scale", 1, "time scale for waits (0 plays instantly)")
	return cmd
}
