package alertclickhouse

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventtriage/pkg/models"
)

func TestWriterInsertsFlattenedRows(t *testing.T) {
	var (
		query string
		user  string
		rows  []row
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		user = r.Header.Get("X-ClickHouse-User")
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			var rw row
			if err := json.Unmarshal(sc.Bytes(), &rw); err == nil {
				rows = append(rows, rw)
			}
		}
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL + "/", Database: "soc", Username: "triage"})
	require.NoError(t, err)
	defer w.Close()

	end := time.Date(2026, 1, 7, 10, 5, 0, 0, time.UTC)
	err = w.WriteAlerts([]*models.Alert{{
		AlertID:     "a1",
		SourceIP:    "10.0.0.1",
		Score:       12,
		Level:       models.LevelCritical,
		WindowStart: end.Add(-5 * time.Minute),
		WindowEnd:   end,
		Counts:      models.AlertCounts{Critical: 1, High: 1, Targets: 2},
		Evidence:    []models.AlertRef{{EventID: 7}, {EventID: 9}},
	}, nil})
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO `soc`.`triage_alerts` FORMAT JSONEachRow", query)
	assert.Equal(t, "triage", user)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-01-07 10:00:00", rows[0].WindowStart)
	assert.Equal(t, []int64{7, 9}, rows[0].EventIDs)
	assert.Equal(t, []string{}, rows[0].AttackTypes)
	assert.Equal(t, 1, rows[0].Critical)
}

func TestWriterSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Code: 60. Table soc.triage_alerts doesn't exist", http.StatusNotFound)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	err = w.WriteAlerts([]*models.Alert{{AlertID: "a1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doesn't exist")

	assert.NoError(t, w.WriteAlerts(nil))
}

func TestQuoteIdentStripsBackticks(t *testing.T) {
	assert.Equal(t, "`alerts`", quoteIdent("al`erts`"))
}
