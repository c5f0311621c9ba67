package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/resilience"
	"github.com/sells-group/jobcheck/internal/roster"
	"github.com/sells-group/jobcheck/pkg/notion"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "Manage tracked people",
}

// -- people list --

var peopleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked people",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		people, err := st.ListPeople(ctx)
		if err != nil {
			return eris.Wrap(err, "people list")
		}
		if len(people) == 0 {
			fmt.Fprintln(os.Stderr, "No people tracked.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, people)
		}
		formatPeopleList(os.Stdout, people)
		return nil
	},
}

// -- people show --

var peopleShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a tracked person with position history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetPerson(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "people show")
		}
		return writeJSON(os.Stdout, p)
	},
}

// -- people add --

var peopleAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Start tracking a person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		company, _ := cmd.Flags().GetString("company")
		role, _ := cmd.Flags().GetString("role")
		recipients, _ := cmd.Flags().GetStringSlice("recipient")

		name := strings.TrimSpace(args[0])
		company = strings.TrimSpace(company)
		if name == "" || company == "" {
			return eris.New("people add: name and --company are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := model.NewPerson("", name, company, strings.TrimSpace(role), recipients, time.Now().UTC())
		created, err := st.CreatePerson(ctx, p)
		if err != nil {
			return eris.Wrap(err, "people add")
		}
		fmt.Fprintf(os.Stdout, "Tracking %s (%s) as %s at %s\n", created.Name, created.ID, created.Current.Role, created.Current.Company)
		return nil
	},
}

// -- people delete --

var peopleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Stop tracking a person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeletePerson(ctx, args[0]); err != nil {
			return eris.Wrap(err, "people delete")
		}
		fmt.Fprintf(os.Stdout, "Deleted %s\n", args[0])
		return nil
	},
}

// -- people import --

var peopleImportCmd = &cobra.Command{
	Use:   "import [file-or-url]",
	Short: "Import people from a CSV, XLSX or YAML roster, or from Notion",
	Long: "Reads a roster from a local file, an http(s) URL, or the configured Notion database " +
		"(--notion) and starts tracking every person whose name is not tracked yet.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		fromNotion, _ := cmd.Flags().GetBool("notion")
		sheet, _ := cmd.Flags().GetString("sheet")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		var source string
		if len(args) == 1 {
			source = args[0]
		}

		var batch *roster.Batch
		var err error
		switch {
		case fromNotion:
			if cfg.Notion.Token == "" {
				return eris.New("notion token is required (JOBCHECK_NOTION_TOKEN)")
			}
			client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
			batch, err = roster.LoadNotion(ctx, client, cfg.Notion.RosterDB)
		case source == "":
			return eris.New("people import: a file, URL or --notion is required")
		case roster.IsURL(source):
			retry := resilience.RetryFromConfig(cfg.Resilience)
			retry.OnRetry = resilience.RetryLogger("roster", "download")
			batch, err = roster.NewDownloader(roster.WithRetry(retry)).LoadURL(ctx, source)
		case sheet != "":
			batch, err = loadSheet(source, sheet)
		default:
			batch, err = roster.LoadFile(ctx, source)
		}
		if err != nil {
			return eris.Wrap(err, "people import")
		}

		if dryRun {
			formatImportReport(os.Stdout, roster.Report{
				Source:   batch.Source,
				Read:     len(batch.Entries) + len(batch.Problems),
				Invalid:  len(batch.Problems),
				Problems: batch.Problems,
			})
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := roster.Import(ctx, st, batch, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "people import")
		}
		formatImportReport(os.Stdout, rep)
		return nil
	},
}

// loadSheet reads a named sheet from a local workbook.
func loadSheet(path, sheet string) (*roster.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return roster.ParseXLSX(path, data, sheet)
}

func init() {
	peopleListCmd.Flags().Bool("json", false, "print people as JSON")

	peopleAddCmd.Flags().String("company", "", "current company (required)")
	peopleAddCmd.Flags().String("role", "", "current role (default \"Unknown\")")
	peopleAddCmd.Flags().StringSlice("recipient", nil, "notification recipient (repeatable)")
	_ = peopleAddCmd.MarkFlagRequired("company")

	peopleImportCmd.Flags().Bool("notion", false, "import from the configured Notion roster database")
	peopleImportCmd.Flags().String("sheet", "", "worksheet name for XLSX files (default first sheet)")
	peopleImportCmd.Flags().Bool("dry-run", false, "parse and validate without writing to the store")

	peopleCmd.AddCommand(peopleListCmd)
	peopleCmd.AddCommand(peopleShowCmd)
	peopleCmd.AddCommand(peopleAddCmd)
	peopleCmd.AddCommand(peopleDeleteCmd)
	peopleCmd.AddCommand(peopleImportCmd)
	rootCmd.AddCommand(peopleCmd)
}
