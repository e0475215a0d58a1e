package cli

import (
	"fmt"
	"path/filepath"

	"github.com/raphaelgruber/urdufact-go/internal/cost"
	"github.com/raphaelgruber/urdufact-go/internal/factcheck"
	"github.com/raphaelgruber/urdufact-go/internal/report"
	"github.com/raphaelgruber/urdufact-go/internal/search"
	"github.com/raphaelgruber/urdufact-go/internal/service"
	"github.com/spf13/cobra"
)

// defaultEvalTool is the tool directory evaluation results are written to.
const defaultEvalTool = "urdufactcheck"

var (
	evalFlags       runFlags
	evalTool        string
	evalClaimField  string
	evalQuestion    string
	evalMaxQueries  int
	evalMaxEvidence int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Fact-check the claims of a translated dataset",
	Long: `Fact-check every record of a translated dataset with web evidence.

For each claim the model writes search queries, Serper results are collected
as evidence and the model judges the claim against each piece of evidence.
The claim is marked false when any piece of evidence contradicts it. The
verdict is stored as a boolean "response" field next to the model and
dataset names.

Results go to {cost-dir}/{tool}/{dataset}/{model}/results.json unless
--output is set, next to the model and Serper cost ledgers of the run.

Examples:
  urdufact evaluate -i factcheckbench_urdu.json -d factcheckbench
  urdufact evaluate -i simpleqa_urdu.json -d simpleqa --question-field question_urdu --claim-field answer_urdu`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	evalFlags.register(evaluateCmd.Flags())
	evaluateCmd.Flags().StringVar(&evalTool, "tool", defaultEvalTool, "tool name used for result and cost paths")
	evaluateCmd.Flags().StringVar(&evalClaimField, "claim-field", "", "field holding the claim (default claim_urdu)")
	evaluateCmd.Flags().StringVar(&evalQuestion, "question-field", "", "field prepended to the claim, e.g. question_urdu")
	evaluateCmd.Flags().IntVar(&evalMaxQueries, "max-queries", 3, "search queries per claim")
	evaluateCmd.Flags().IntVar(&evalMaxEvidence, "max-evidence", 5, "evidence snippets per claim")
	_ = evaluateCmd.MarkFlagRequired("input")
	_ = evaluateCmd.MarkFlagRequired("dataset")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runID := evalFlags.id()
	model := cfg.LLM.Model

	output := evalFlags.output
	if output == "" {
		output = filepath.Join(cost.Dir(cfg.Cost.Dir, evalTool, evalFlags.dataset, model), report.ResultsFile)
	}

	ledger := newLedger(evalTool, evalFlags.dataset, model, runID)
	d, err := newDispatcher(ctx, ledger, cfg.Processing.ChatTimeout)
	if err != nil {
		return err
	}

	searcher, err := search.NewClient(cfg.Search,
		search.WithCreditRecorder(ledger),
		search.WithMetrics(collector),
		search.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("init search: %w", err)
	}

	evaluator := factcheck.NewEvaluator(factcheck.Config{
		ClaimField:    evalClaimField,
		QuestionField: evalQuestion,
		Dataset:       evalFlags.dataset,
		Model:         d.Model(),
		MaxQueries:    evalMaxQueries,
		MaxEvidence:   evalMaxEvidence,
		Concurrency:   cfg.Processing.Concurrency,
	}, d, searcher, logger)

	validator, err := resumeValidator(evalFlags.lenientResume, evaluator.ResumeValidator)
	if err != nil {
		return err
	}

	return runDataset(ctx, service.RunConfig{
		InputPath:  evalFlags.input,
		OutputPath: output,
		Tool:       evalTool,
		Dataset:    evalFlags.dataset,
		Model:      d.Model(),
		RunID:      runID,
		Validator:  validator,
	}, evaluator)
}
