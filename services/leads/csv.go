package leads

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"leadscout/services/discovery"
)

var csvHeader = []string{
	"name", "address", "phone", "rating", "website", "score", "qualified", "issues",
}

func WriteCSV(w io.Writer, results []discovery.Lead) error {
	out := csv.NewWriter(w)

	if err := out.Write(csvHeader); err != nil {
		return err
	}

	for _, lead := range results {
		record := []string{
			lead.Listing.Name,
			deref(lead.Listing.Address),
			deref(lead.Listing.Phone),
			deref(lead.Listing.Rating),
			deref(lead.Listing.Website),
			"",
			strconv.FormatBool(lead.Qualified),
			"",
		}
		if lead.Evaluation != nil {
			record[5] = strconv.Itoa(lead.Evaluation.Score)
			record[7] = strings.Join(lead.Evaluation.Issues, "; ")
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
