package roster

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobcheck/pkg/notion"
)

// Notion property names read from a roster database.
const (
	NotionPropName       = "Name"
	NotionPropCompany    = "Company"
	NotionPropRole       = "Role"
	NotionPropRecipients = "Recipients"
)

// LoadNotion reads every active page of a Notion roster database.
func LoadNotion(ctx context.Context, c notion.Client, dbID string) (*Batch, error) {
	if dbID == "" {
		return nil, eris.New("roster: notion: no roster database configured")
	}
	pages, err := notion.QueryRoster(ctx, c, dbID)
	if err != nil {
		return nil, eris.Wrap(err, "roster: notion")
	}

	b := &Batch{Source: "notion:" + dbID}
	for i, page := range pages {
		b.add(i+1, Entry{
			Name:       notion.Text(page.Properties, NotionPropName),
			Company:    notion.Text(page.Properties, NotionPropCompany),
			Role:       notion.Text(page.Properties, NotionPropRole),
			Recipients: notion.List(page.Properties, NotionPropRecipients),
		})
	}
	return b, nil
}
