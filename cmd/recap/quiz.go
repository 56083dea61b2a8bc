package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/recap/internal/i18n"
	"github.com/pavelanni/recap/internal/llm"
	"github.com/pavelanni/recap/internal/media"
	"github.com/pavelanni/recap/internal/model"
	"github.com/pavelanni/recap/internal/session"
	"github.com/pavelanni/recap/internal/store"
)

// notesTerminator ends notes read from stdin, so answers can follow on the same stream.
const notesTerminator = "."

func quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate a quiz and take it in the terminal",
		Example: `  recap quiz --notes lecture.md -n 3
  recap quiz --text "Mitochondria produce ATP." --image slide.png --quiz-language ru
  cat notes.txt | recap quiz --notes -`,
		RunE: runQuiz,
	}
	addCommonFlags(cmd)
	addModelFlags(cmd)
	f := cmd.Flags()
	f.String("notes", "", "Read notes from a file (- for stdin, ended by a line with a single dot)")
	f.String("text", "", "Notes given on the command line")
	f.StringSlice("image", nil, "Image file to include (repeatable, up to 5)")
	f.StringSlice("url", nil, "Link to include (repeatable, up to 5)")
	return cmd
}

func runQuiz(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	gw, err := newGateway(v, db)
	if err != nil {
		return fmt.Errorf("create model gateway: %w", err)
	}
	if !gw.IsReady() {
		return fmt.Errorf("%w: run `recap settings --api-key KEY` or pass --api-key", llm.ErrNotConfigured)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	notes := v.GetString("text")
	if path := v.GetString("notes"); path != "" {
		fileNotes, err := readNotes(in, path)
		if err != nil {
			return err
		}
		notes = strings.TrimSpace(notes + "\n\n" + fileNotes)
	}
	urls, err := media.NormalizeURLs(v.GetStringSlice("url"))
	if err != nil {
		return err
	}
	images, err := media.LoadFiles(ctx, v.GetStringSlice("image"))
	if err != nil {
		return err
	}
	if strings.TrimSpace(notes) == "" && len(urls) == 0 && len(images) == 0 {
		return errors.New("nothing to recap: pass --notes, --text, --url or --image")
	}

	lang := v.GetString("quiz-language")
	fmt.Fprintln(out, "Generating quiz...")
	raw, err := gw.GenerateQuiz(ctx, llm.GenerateRequest{
		Text:          notes,
		URLs:          urls,
		Images:        images,
		QuestionCount: v.GetInt("questions"),
		Language:      appI18n.EnglishName(lang),
		QuizMode:      true,
	})
	if err != nil {
		return err
	}
	quiz, err := model.DecodeQuiz(raw)
	if err != nil {
		fmt.Fprintf(out, "The model reply could not be read as a quiz:\n\n%s\n\n", raw)
		return err
	}
	sess, err := session.New(quiz)
	if err != nil {
		return err
	}

	defer gw.ResetConversation()
	if err := playQuiz(ctx, in, out, sess, gw); err != nil {
		return err
	}

	sum := sess.Summary()
	printSummary(out, sum)
	if _, err := db.SaveResult(sum, model.ResultMeta{Model: gw.Model(), Language: lang}); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// readNotes reads notes from a file, or from in when path is "-".
func readNotes(in *bufio.Reader, path string) (string, error) {
	if path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read notes: %w", err)
		}
		return string(data), nil
	}

	var lines []string
	for {
		line, err := in.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == notesTerminator {
			break
		}
		if line != "" {
			lines = append(lines, trimmed)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read notes: %w", err)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// playQuiz runs sess to the end, reading answers from in.
func playQuiz(ctx context.Context, in *bufio.Reader, out io.Writer, sess *session.Session, g session.Grader) error {
	first := sess.Snapshot()
	fmt.Fprintf(out, "\n%s\n", first.Title)

	for !sess.Finished() {
		v := sess.Snapshot()
		q := v.Question
		fmt.Fprintf(out, "\nQuestion %d of %d\n%s\n", v.Index+1, v.Total, q.Prompt)

		var err error
		switch q.Kind {
		case model.KindMultipleChoice:
			err = answerChoice(in, out, sess, q)
		case model.KindFreeAnswer:
			err = answerFree(ctx, in, out, sess, g)
		}
		if err != nil {
			return err
		}

		if err := sess.Next(); err != nil {
			return err
		}
	}
	return nil
}

func answerChoice(in *bufio.Reader, out io.Writer, sess *session.Session, q model.Question) error {
	for _, o := range q.Options {
		fmt.Fprintf(out, "  %d) %s\n", o.Index+1, o.Text)
	}
	hint := "Select one answer."
	if q.MultiSelect() {
		hint = "Select all that apply, separated by commas."
	}
	fmt.Fprintln(out, hint)

	for {
		line, err := readLine(in, out, "Your choice: ")
		if err != nil {
			return err
		}
		choices, err := parseChoices(line, len(q.Options))
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if !q.MultiSelect() && len(choices) != 1 {
			fmt.Fprintln(out, "Select exactly one option.")
			continue
		}
		for _, i := range choices {
			if err := sess.ToggleOption(i); err != nil {
				return err
			}
		}
		break
	}

	res, err := sess.SubmitChoice()
	if err != nil {
		return err
	}
	selected := sess.Snapshot().Selected
	for _, o := range q.Options {
		mark := " "
		switch {
		case o.Correct:
			mark = "+"
		case selected[o.Index]:
			mark = "x"
		}
		fmt.Fprintf(out, "  %s %d) %s\n", mark, o.Index+1, o.Text)
	}
	printResult(out, res)
	return nil
}

func answerFree(ctx context.Context, in *bufio.Reader, out io.Writer, sess *session.Session, g session.Grader) error {
	for {
		line, err := readLine(in, out, "Your answer: ")
		if err != nil {
			return err
		}
		if err := sess.SetFreeText(line); err != nil {
			return err
		}
		if !sess.CanSubmit() {
			fmt.Fprintln(out, "The answer cannot be empty.")
			continue
		}

		fmt.Fprintln(out, "Grading...")
		if err := sess.SubmitFreeAnswer(ctx, g); err != nil {
			return err
		}
		switch st := sess.Snapshot().Grading.(type) {
		case session.GradingSuccess:
			printResult(out, st.Result)
			return nil
		case session.GradingError:
			fmt.Fprintf(out, "Grading failed: %s\nTry again.\n", st.Message)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// parseChoices turns "1, 3" into zero-based option indices.
func parseChoices(line string, n int) ([]int, error) {
	var out []int
	for _, f := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
		i, err := strconv.Atoi(f)
		if err != nil || i < 1 || i > n {
			return nil, fmt.Errorf("enter numbers from 1 to %d", n)
		}
		if !slices.Contains(out, i-1) {
			out = append(out, i-1)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("select at least one option")
	}
	return out, nil
}

func readLine(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", fmt.Errorf("input ended before the quiz was finished: %w", io.ErrUnexpectedEOF)
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printResult(out io.Writer, res model.GradingResult) {
	if res.IsCorrect {
		fmt.Fprintln(out, "Correct!")
	} else {
		fmt.Fprintln(out, "Incorrect.")
	}
	if res.ExpectedAnswer != "" {
		fmt.Fprintf(out, "Expected answer: %s\n", res.ExpectedAnswer)
	}
	if res.Feedback != "" {
		fmt.Fprintf(out, "Feedback: %s\n", res.Feedback)
	}
}

func printSummary(out io.Writer, sum model.Summary) {
	fmt.Fprintf(out, "\nQuiz complete: %s\nYou scored %d of %d.\n", sum.Title, sum.Score, sum.Total)
}
