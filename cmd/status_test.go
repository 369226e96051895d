//go:build !integration

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quadrat-io/trapline/internal/store"
)

func TestFormatInventory(t *testing.T) {
	var buf bytes.Buffer
	formatInventory(&buf, []store.InventoryRow{
		{
			TableName: "bet_fielddata",
			SiteID:    "HARV",
			Months:    12,
			Bytes:     54321,
			FetchedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "bet_fielddata")
	assert.Contains(t, out, "HARV")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "2024-03-01 09:30")
}

func TestFormatSyncRuns(t *testing.T) {
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)

	var buf bytes.Buffer
	formatSyncRuns(&buf, []store.SyncRun{
		{
			ID:         "run-1",
			StartedAt:  started,
			FinishedAt: &finished,
			Status:     store.SyncSuccess,
			Sites:      3,
			Months:     24,
			Files:      96,
			Bytes:      1 << 20,
		},
		{
			ID:        "run-2",
			StartedAt: started,
			Status:    store.SyncFailed,
			Error:     strings.Repeat("portal unreachable ", 10),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("portal unreachable ", 10))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "toolon...", truncate("toolongforthis", 9))
}
