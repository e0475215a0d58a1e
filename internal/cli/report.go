package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/raphaelgruber/urdufact-go/internal/report"
	"github.com/spf13/cobra"
)

var (
	reportRoot  string
	reportTools []string
	reportJSON  string
	reportCSV   string
	reportQuiet bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Score evaluation results and summarize their cost",
	Long: `Build a classification report for every evaluated (tool, dataset, model)
run below the results root, with the model, Serper and total cost of each run.

The report is written as JSON and CSV and printed as a table.

Examples:
  urdufact report
  urdufact report --tools urdufactcheck --json report.json --csv report.csv`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportRoot, "root", "", "results root (default: cost dir)")
	reportCmd.Flags().StringSliceVar(&reportTools, "tools", nil, "only these tool directories")
	reportCmd.Flags().StringVar(&reportJSON, "json", "evaluation_report.json", "JSON output path (empty to skip)")
	reportCmd.Flags().StringVar(&reportCSV, "csv", "evaluation_report.csv", "CSV output path (empty to skip)")
	reportCmd.Flags().BoolVarP(&reportQuiet, "quiet", "q", false, "do not print the table")
}

func runReport(cmd *cobra.Command, args []string) error {
	root := reportRoot
	if root == "" {
		root = cfg.Cost.Dir
	}
	prices, err := loadPrices()
	if err != nil {
		return err
	}

	r, err := report.Build(report.Options{
		Root:   root,
		Tools:  reportTools,
		Prices: prices,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	if reportJSON != "" {
		if err := r.WriteJSON(reportJSON); err != nil {
			return err
		}
	}
	if reportCSV != "" {
		if err := r.WriteCSV(reportCSV); err != nil {
			return err
		}
	}

	if reportQuiet {
		return nil
	}
	if len(r.Entries) == 0 {
		fmt.Printf("No results found under %s\n", root)
		return nil
	}
	fmt.Println(renderTable(report.CSVHeader, r.Rows()))
	return nil
}

// renderTable draws rows with a bold header and right-aligned numbers.
func renderTable(header []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(defaultTheme.Status).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	numStyle := cellStyle.Align(lipgloss.Right)

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(defaultTheme.Hint)).
		Headers(header...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col < 3:
				return cellStyle
			default:
				return numStyle
			}
		}).
		String()
}
