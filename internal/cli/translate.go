package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/urdufact-go/internal/llm"
	"github.com/raphaelgruber/urdufact-go/internal/service"
	"github.com/raphaelgruber/urdufact-go/internal/translate"
	"github.com/spf13/cobra"
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a dataset into Urdu",
	Long: `Translate the fields of every record of an English dataset into Urdu.

Available tasks: ` + strings.Join(taskNames(), ", ") + `

Examples:
  urdufact translate qa -i simpleqa.json -o simpleqa_urdu.json -d simpleqa
  urdufact translate claims -i factcheckbench.jsonl -o factcheckbench_urdu.json -d factcheckbench \
    --examples examples/claims.json --progress`,
}

func init() {
	for _, name := range taskNames() {
		translateCmd.AddCommand(newTranslateTaskCmd(name, translate.Tasks[name]))
	}
}

func taskNames() []string {
	names := make([]string, 0, len(translate.Tasks))
	for name := range translate.Tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func newTranslateTaskCmd(name string, spec translate.Spec) *cobra.Command {
	var (
		flags    runFlags
		examples string
	)
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Translate %s into %s", strings.Join(spec.Inputs, "/"), strings.Join(spec.Outputs, "/")),
		Long: fmt.Sprintf(`Translate the %s fields of every record and store the result in %s.

With --examples, a JSON list of translated records is embedded once and the
most relevant, least redundant examples are added to every prompt.`,
			strings.Join(spec.Inputs, ", "), strings.Join(spec.Outputs, ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := flags.id()

			ledger := newLedger(spec.Name, flags.dataset, cfg.LLM.Model, runID)
			d, err := newDispatcher(ctx, ledger, cfg.Processing.TranslateTimeout)
			if err != nil {
				return err
			}

			var opts []translate.ChainOption
			opts = append(opts, translate.WithLogger(logger))
			if examples != "" {
				exs, err := translate.LoadExamples(examples)
				if err != nil {
					return err
				}
				embedder, err := llm.NewEmbedder(cfg, collector)
				if err != nil {
					return fmt.Errorf("init embedder: %w", err)
				}
				selector, err := translate.NewSelector(ctx, spec, exs, embedder)
				if err != nil {
					return fmt.Errorf("init example selector: %w", err)
				}
				opts = append(opts, translate.WithSelector(selector))
			}
			chain := translate.NewChain(spec, d, opts...)

			validator, err := resumeValidator(flags.lenientResume, chain.ResumeValidator)
			if err != nil {
				return err
			}

			return runDataset(ctx, service.RunConfig{
				InputPath:  flags.input,
				OutputPath: flags.output,
				Tool:       chain.Name(),
				Dataset:    flags.dataset,
				Model:      d.Model(),
				RunID:      runID,
				Validator:  validator,
			}, chain)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&examples, "examples", "", "few-shot examples file (JSON list of translated records)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
