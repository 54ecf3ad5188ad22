package targets

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/jobwatch/internal/models"
)

// Load reads the two-column target CSV (company name, URL).
//
// Supports both of these forms:
//   - With header: company,url
//   - Without header: NVIDIA,https://...
//
// The header row is auto-detected by case-insensitive column name matching.
// Rows with fewer than two non-empty cells are skipped.
func Load(csvPath string) ([]models.Target, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets CSV %s: %w", csvPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse targets CSV %s: %w", csvPath, err)
	}

	var rows [][]string
	for _, row := range raw {
		if rowHasContent(row) {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	dataRows := rows
	if isHeaderRow(rows[0]) {
		dataRows = rows[1:]
	}

	var out []models.Target
	for _, row := range dataRows {
		if len(row) < 2 {
			continue
		}
		company := strings.TrimSpace(row[0])
		url := strings.TrimSpace(row[1])
		if company == "" || url == "" {
			continue
		}
		out = append(out, models.Target{Company: company, URL: url})
	}
	return out, nil
}

func rowHasContent(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}

func isHeaderRow(row []string) bool {
	if len(row) < 2 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(row[0]))
	second := strings.ToLower(strings.TrimSpace(row[1]))

	companyAlias := first == "company" || first == "company_name" || first == "name"
	urlAlias := second == "url" || second == "link"
	if companyAlias && urlAlias {
		return true
	}
	return strings.Contains(first, "company") && strings.Contains(second, "url")
}
