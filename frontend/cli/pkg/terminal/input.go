package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nimec77/deepseek-json/backend/taskfinisher"
)

// LineReader reads trimmed lines from an input stream. A read can be
// abandoned by cancelling its context; the pending line is then delivered to
// the next ReadLine call.
type LineReader struct {
	input io.Reader
	once  sync.Once
	lines chan string
	done  chan struct{}
	// err is written once before done is closed.
	err error
}

func NewLineReader(input io.Reader) *LineReader {
	return &LineReader{
		input: input,
		lines: make(chan string),
		done:  make(chan struct{}),
	}
}

func (r *LineReader) start() {
	go func() {
		defer close(r.done)

		scanner := bufio.NewScanner(r.input)
		for scanner.Scan() {
			r.lines <- strings.TrimSpace(scanner.Text())
		}
		r.err = scanner.Err()
		if r.err == nil {
			r.err = io.EOF
		}
	}()
}

func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	r.once.Do(r.start)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-r.lines:
		return line, nil
	case <-r.done:
		return "", r.err
	}
}

// Ask writes prompt to out and waits for one line of input.
func (r *LineReader) Ask(ctx context.Context, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, Prompt(prompt))
	return r.ReadLine(ctx)
}

func IsQuitCommand(input string) bool {
	return strings.EqualFold(input, "/quit") || strings.EqualFold(input, "/exit")
}

func IsProceedCommand(input string) bool {
	return strings.EqualFold(input, "/proceed")
}

// AnswerPrompter asks the user each clarifying question in turn. An empty
// line skips the question; /proceed, /quit or /exit and the end of input
// finish the round with the answers given so far.
type AnswerPrompter struct {
	reader *LineReader
	out    io.Writer
}

func NewAnswerPrompter(reader *LineReader, out io.Writer) *AnswerPrompter {
	return &AnswerPrompter{reader: reader, out: out}
}

func (p *AnswerPrompter) CollectAnswers(ctx context.Context, round int, payload *taskfinisher.ClarifyingPayload) (*taskfinisher.AnswersPayload, error) {
	RenderClarifying(p.out, round, payload)
	fmt.Fprintf(p.out, "\n%s\n", "✍️ Answer the questions one-by-one. Press Enter to skip. Type '/proceed' to finalize now.")

	answers := &taskfinisher.AnswersPayload{Answers: []taskfinisher.AnswerItem{}}
	for _, q := range payload.Questions {
		fmt.Fprintf(p.out, "\n%s %s\n", Bold(q.ID), q.Text)
		if q.HasOptions() {
			fmt.Fprintf(p.out, "options: %s\n", strings.Join(q.Options, " | "))
		}

		input, err := p.reader.Ask(ctx, p.out, fmt.Sprintf("Your answer for %s: ", q.ID))
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if input == "" {
			continue
		}
		if IsQuitCommand(input) || IsProceedCommand(input) {
			break
		}

		answers.Answers = append(answers.Answers, taskfinisher.AnswerItem{ID: q.ID, Answer: input})
	}

	return answers, nil
}

var _ taskfinisher.AnswerCollector = (*AnswerPrompter)(nil)
