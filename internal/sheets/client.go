package sheets

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/rs/zerolog/log"
)

// Update is one range/value pair of a batch write.
type Update struct {
	Range  string
	Values [][]interface{}
}

// Client talks to a single spreadsheet through the Sheets v4 API.
type Client struct {
	service       *sheets.Service
	spreadsheetID string
}

// Credentials selects how the client authenticates. JSON wins over File.
type Credentials struct {
	JSON []byte
	File string
}

func NewClient(ctx context.Context, spreadsheetID string, creds Credentials) (*Client, error) {
	opt, err := credentialsOption(ctx, creds)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service:       service,
		spreadsheetID: spreadsheetID,
	}, nil
}

func credentialsOption(ctx context.Context, creds Credentials) (option.ClientOption, error) {
	data := creds.JSON
	if len(data) == 0 {
		raw, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		data = raw
		log.Debug().Str("file", creds.File).Msg("Loaded Google credentials file")
	}

	gc, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse google credentials: %w", err)
	}
	return option.WithCredentials(gc), nil
}

func (c *Client) GetValues(ctx context.Context, range_ string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, range_).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	return resp.Values, nil
}

func (c *Client) UpdateValues(ctx context.Context, range_ string, values [][]interface{}) error {
	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, range_, valueRange).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update range: %w", err)
	}

	return nil
}

func (c *Client) BatchUpdateValues(ctx context.Context, updates []Update) error {
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{Range: u.Range, Values: u.Values})
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}
	_, err := c.service.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to batch update ranges: %w", err)
	}

	return nil
}

func (c *Client) ClearValues(ctx context.Context, ranges []string) error {
	req := &sheets.BatchClearValuesRequest{Ranges: ranges}
	_, err := c.service.Spreadsheets.Values.BatchClear(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear ranges: %w", err)
	}

	return nil
}

// DeleteRows removes rows [start, end) (zero-based) from the sheet, shifting
// the rows below up.
func (c *Client) DeleteRows(ctx context.Context, sheetID, start, end int64) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: start,
					EndIndex:   end,
					// Sheet 0 and row 0 are valid values that omitempty would drop.
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete rows: %w", err)
	}

	return nil
}

// SheetID resolves a worksheet title to its numeric id.
func (c *Client) SheetID(ctx context.Context, title string) (int64, error) {
	resp, err := c.service.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read spreadsheet metadata: %w", err)
	}

	for _, s := range resp.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrSheetNotFound, title)
}
