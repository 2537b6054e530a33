// Package results persists the only state the testbed keeps between
// runs: a monotonic test identifier and an append-only CSV of result
// records.
package results

import (
	"encoding/csv"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/p2plab/p2p-testbed/pkg/file"
	"github.com/p2plab/p2p-testbed/pkg/model"
)

// Header enumerates the result CSV columns.
var Header = []string{
	"runId", "testId", "peers", "overlay", "fileBytes",
	"bwMinKbps", "bwAvgKbps", "bwMaxKbps",
	"latErrMin", "latErrAvg", "latErrMax",
	"bwErrMin", "bwErrAvg", "bwErrMax",
	"connMsMin", "connMsAvg", "connMsMax",
	"transferMsMin", "transferMsAvg", "transferMsMax",
	"totalMsMin", "totalMsAvg", "totalMsMax",
	"hashMatch", "status",
}

// NextTestID increments and persists the monotonic test counter at path.
// A missing counter file starts the sequence at 1.
func NextTestID(path string) (int, error) {
	current := 0
	if file.Exists(path) {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read test counter %s: %w", path, err)
		}
		current, err = strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return 0, fmt.Errorf("parse test counter %s: %w", path, err)
		}
	}
	next := current + 1
	if err := ioutil.WriteFile(path, []byte(strconv.Itoa(next)+"\n"), 0644); err != nil {
		return 0, fmt.Errorf("write test counter %s: %w", path, err)
	}
	return next, nil
}

// Append writes one record to the results CSV, creating the file with its
// header on first use.
func Append(path string, rec model.ResultRecord) error {
	writeHeader := !file.Exists(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open results %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write results header: %w", err)
		}
	}
	if err := w.Write(row(rec)); err != nil {
		return fmt.Errorf("write results row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func row(rec model.ResultRecord) []string {
	fields := []string{
		rec.RunID,
		strconv.Itoa(rec.TestID),
		strconv.Itoa(rec.Peers),
		rec.Overlay,
		strconv.FormatInt(rec.FileBytes, 10),
	}
	for _, s := range []model.Stats{
		rec.Bandwidth, rec.LatencyError, rec.BandwidthError,
		rec.ConnectionMs, rec.TransferMs, rec.TotalMs,
	} {
		fields = append(fields,
			formatStat(s.Min), formatStat(s.Avg), formatStat(s.Max))
	}
	return append(fields, strconv.FormatBool(rec.HashMatch), rec.Status)
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
