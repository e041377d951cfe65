package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

type options struct {
	topic        string
	breadth      int
	depth        int
	output       string
	skipFeedback bool

	topicSet   bool
	breadthSet bool
	depthSet   bool
}

type cli struct {
	in     *bufio.Reader
	out    io.Writer
	cfg    *config.Config
	models *clients.Models
	search research.SearchService
	logger *slog.Logger
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptInt reads a positive integer, keeping fallback on empty or invalid input.
func (c *cli) promptInt(label string, fallback int) (int, error) {
	answer, err := c.prompt(fmt.Sprintf("%s (default %d): ", label, fallback))
	if err != nil {
		return 0, err
	}
	if answer == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 {
		fmt.Fprintf(c.out, "Invalid value %q, using %d\n", answer, fallback)
		return fallback, nil
	}
	return n, nil
}

func (c *cli) run(ctx context.Context, opts options) error {
	topic := strings.TrimSpace(opts.topic)
	if !opts.topicSet {
		var err error
		topic, err = c.prompt("What would you like to research? ")
		if err != nil {
			return err
		}
	}
	if topic == "" {
		return research.ErrEmptyTopic
	}

	combined := topic
	if !opts.skipFeedback {
		questions := research.GenerateFeedback(ctx, c.models.Feedback, c.logger, topic, research.DefaultMaxFeedbackQuestions)
		if len(questions) > 0 {
			fmt.Fprintln(c.out, "\nTo better understand your research needs, please answer these follow-up questions:")
			answers := make([]string, len(questions))
			for i, q := range questions {
				answer, err := c.prompt(fmt.Sprintf("\n%s\nYour answer: ", q))
				if err != nil {
					return err
				}
				answers[i] = answer
			}
			combined = research.CombineQuery(topic, questions, answers)
		} else {
			fmt.Fprintln(c.out, "No follow-up questions were generated.")
		}
		fmt.Fprintf(c.out, "\nFinal question:\n\n%s\n\n", combined)
	}

	breadth, depth := opts.breadth, opts.depth
	if !opts.breadthSet {
		b, err := c.promptInt("Enter research breadth", breadth)
		if err != nil {
			return err
		}
		breadth = b
	}
	if !opts.depthSet {
		d, err := c.promptInt("Enter research depth", depth)
		if err != nil {
			return err
		}
		depth = d
	}

	engine := research.NewEngine(c.models.Research, c.search,
		research.WithLogger(c.logger),
		research.WithSearchLimits(c.cfg.SearchTimeout, c.cfg.SearchLimit),
		research.WithSynthesisLimits(c.cfg.MaxLearnings, c.cfg.MaxFollowUps),
	)

	fmt.Fprintln(c.out, "\nStarting research...")
	state, err := engine.Research(ctx, combined, breadth, depth)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n\nLearnings:\n\n%s\n", strings.Join(state.Learnings, "\n"))
	fmt.Fprintf(c.out, "\n\nVisited URLs (%d):\n\n%s\n", len(state.VisitedURLs), strings.Join(state.VisitedURLs, "\n"))

	fmt.Fprintln(c.out, "Writing final report...")
	report := research.WriteFinalReport(ctx, c.models.Report, c.logger, combined, state.Learnings, state.VisitedURLs)

	if err := writeReport(opts.output, report); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n\nFinal Report:\n\n%s\n", report)
	fmt.Fprintf(c.out, "\nReport has been saved to %s\n", opts.output)
	return nil
}

func writeReport(path, report string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
