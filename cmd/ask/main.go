// Command ask runs the reasoner once against the configured model and
// prints the answer. With -dump the raw provider chunks are written under
// debug/chunks/<request id>/ for inspection.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"reasoner/pkg/agent"
	"reasoner/pkg/config"
	"reasoner/pkg/llm"
	_ "reasoner/pkg/llm/autoload"
	"reasoner/pkg/monitor"
	"reasoner/pkg/utils"

	"github.com/subosito/gotenv"
)

func main() {
	_ = gotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	appPath := fs.String("config", "config.json", "application config")
	sysPath := fs.String("system", "system.json", "engine config")
	transcript := fs.String("transcript", "", "file of prior turns, one \"Human: \" or \"AI: \" line each; - reads stdin")
	dump := fs.Bool("dump", false, "write raw provider chunks to the debug directory")
	showPrompt := fs.Bool("prompt", false, "print the rendered prompt instead of calling the model")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, sys, err := config.Load(*appPath, *sysPath)
	if err != nil {
		return err
	}
	if _, err := monitor.SetupSlog(sys.LogLevel, ""); err != nil {
		return err
	}

	var history []llm.ChatMessage
	if *transcript != "" {
		r := stdin
		if *transcript != "-" {
			f, err := os.Open(*transcript)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		if history, err = parseTranscript(r, cfg.ReasonerName()); err != nil {
			return err
		}
	}
	if question := strings.TrimSpace(strings.Join(fs.Args(), " ")); question != "" {
		history = append(history, llm.NewUserText(question, llm.HumanLabel))
	}
	if len(history) == 0 {
		return errors.New("nothing to ask: pass a question or -transcript")
	}

	stream, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		return err
	}
	if d, ok := stream.(llm.DebugSetter); ok && *dump {
		d.SetDebug(true)
	}

	reasoner := agent.NewReasoner(
		llm.NewCompletionClient(stream, llm.WithTimeout(sys.LLMTimeout())),
		agent.WithDescription(cfg.Reasoner.Description),
	)

	if *showPrompt {
		fmt.Fprint(stdout, reasoner.BuildPrompt(history))
		return nil
	}

	requestID := utils.NewRequestID()
	ctx = context.WithValue(ctx, llm.DebugDirContextKey, requestID)
	_, answer, err := reasoner.GenerateReply(ctx, history)
	if err != nil {
		return err
	}
	if *dump {
		slog.Info("Raw chunks saved", "request", requestID, "dir", llm.DebugRoot)
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

// parseTranscript reads "Human: ..." and "AI: ..." lines. Lines without a
// prefix continue the previous turn.
func parseTranscript(r io.Reader, aiName string) ([]llm.ChatMessage, error) {
	type turn struct {
		human bool
		text  []string
	}
	var turns []turn

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, llm.HumanLabel+": "):
			turns = append(turns, turn{human: true, text: []string{strings.TrimPrefix(line, llm.HumanLabel+": ")}})
		case strings.HasPrefix(line, llm.AILabel+": "):
			turns = append(turns, turn{text: []string{strings.TrimPrefix(line, llm.AILabel+": ")}})
		case len(turns) > 0:
			turns[len(turns)-1].text = append(turns[len(turns)-1].text, line)
		case strings.TrimSpace(line) != "":
			return nil, fmt.Errorf("transcript must start with %q or %q", llm.HumanLabel+": ", llm.AILabel+": ")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	history := make([]llm.ChatMessage, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimRight(strings.Join(t.text, "\n"), "\n")
		if t.human {
			history = append(history, llm.NewUserText(text, llm.HumanLabel))
		} else {
			history = append(history, llm.NewAIText(text, aiName))
		}
	}
	return history, nil
}
