// Package export writes order snapshots in JSON or CSV for reporting.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/citydrop/dispatch/core/model"
)

// WriteJSON writes the orders to w in JSON format.
func WriteJSON(w io.Writer, orders []model.Order) error {
	enc := json.NewEncoder(w)
	return enc.Encode(orders)
}

// WriteCSV writes the orders to w in CSV format.
func WriteCSV(w io.Writer, orders []model.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"order_id", "status", "driver_id", "job_id", "created_at", "assigned_at"}); err != nil {
		return err
	}
	for _, o := range orders {
		rec := []string{
			o.ID,
			o.Status.String(),
			o.DriverID,
			o.JobID,
			formatMillis(o.CreatedAt),
			formatMillis(o.AssignedAt),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
