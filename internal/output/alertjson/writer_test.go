package alertjson

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventtriage/pkg/models"
)

func TestWriterAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.jsonl")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteAlerts([]*models.Alert{{AlertID: "a1", SourceIP: "10.0.0.1"}, nil}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteAlerts([]*models.Alert{{AlertID: "late"}}))

	w, err = NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteAlerts([]*models.Alert{{AlertID: "a2", Level: models.LevelCritical}}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var a models.Alert
		require.NoError(t, json.Unmarshal(sc.Bytes(), &a))
		ids = append(ids, a.AlertID)
	}
	assert.Equal(t, []string{"a1", "a2"}, ids)
}

func TestNewWriterRejectsEmptyPath(t *testing.T) {
	_, err := NewWriter("")
	assert.Error(t, err)
}
