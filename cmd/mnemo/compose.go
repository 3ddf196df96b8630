package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/editor"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/output"
)

const defaultComposePrompt = "Note"

// ComposeResult is the structured output of 'mnemo compose'.
type ComposeResult struct {
	Text  string `json:"text" yaml:"text"`
	Lines int    `json:"lines" yaml:"lines"`
}

func newComposeResult(text string) ComposeResult {
	return ComposeResult{Text: text, Lines: strings.Count(text, "\n") + 1}
}

func newComposeCmd() *cobra.Command {
	var (
		text          string
		defaultText   string
		placeholder   string
		maxLines      int
		noLineNumbers bool
		submitKeys    []string
		cancelKeys    []string
	)

	cmd := &cobra.Command{
		Use:   "compose [prompt]",
		Short: "Write a multi-line note inline",
		Long: `Open an inline multi-line editor in the terminal and print what you wrote.

Enter inserts a new line. Submit with Ctrl+D and cancel with Ctrl+C; both
chords can be changed with --submit-key and --cancel-key. Arrow keys,
Home and End move the cursor.

Cancelling exits with status 130 and prints nothing. In scripts, pass the
note with --text instead of opening the editor.`,
		Example: `  mnemo compose
  mnemo compose "What did you learn today?"
  mnemo compose --default "- " --max-lines 10
  mnemo compose --submit-key ctrl+s --cancel-key escape
  mnemo compose --text "buy milk" --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			opts := editor.Options{
				Placeholder:     placeholder,
				DefaultContent:  defaultText,
				MaxLines:        maxLines,
				SubmitKeys:      submitKeys,
				CancelKeys:      cancelKeys,
				ShowLineNumbers: editor.Bool(!noLineNumbers),
			}

			if err := opts.Validate(); err != nil {
				return err
			}

			if cmd.Flags().Changed("text") {
				return printComposed(out, text)
			}

			if out.NoInput {
				return clierrors.CannotPrompt("--text")
			}

			prompt := defaultComposePrompt
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				prompt = args[0]
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer cancel()

			handler := editor.NewHandler(openTerminal(), observability.FromContext(ctx))

			result, err := handler.Collect(ctx, prompt, opts)
			if err != nil {
				return err
			}

			return printComposed(out, result)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Use this text instead of opening the editor")
	cmd.Flags().StringVar(&defaultText, "default", "", "Initial editor content")
	cmd.Flags().StringVar(&placeholder, "placeholder", "", "Hint shown while the editor is empty")
	cmd.Flags().IntVar(&maxLines, "max-lines", 0, "Maximum number of lines (0 for unlimited)")
	cmd.Flags().BoolVar(&noLineNumbers, "no-line-numbers", false, "Hide the line number gutter")
	cmd.Flags().StringSliceVar(&submitKeys, "submit-key", nil, "Key chord that submits (repeatable, default ctrl+d)")
	cmd.Flags().StringSliceVar(&cancelKeys, "cancel-key", nil, "Key chord that cancels (repeatable, default ctrl+c)")

	return cmd
}

func printComposed(out *output.Writer, text string) error {
	if out.Structured() {
		return out.PrintStructured(newComposeResult(text))
	}

	out.Print("%s\n", text)

	return nil
}
