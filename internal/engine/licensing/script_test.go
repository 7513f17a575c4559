package licensing_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyhub/internal/engine/licensing"
)

func TestGenerateScriptID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := licensing.GenerateScriptID()
		require.NoError(t, err)
		require.Len(t, id, 8)
		for _, c := range id {
			assert.True(t, (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'), id)
		}
	}
}

func TestUploadScript(t *testing.T) {
	ks, clock := newKeystore(t)
	ctx := context.Background()

	sc, err := ks.UploadScript(ctx, licensing.UploadParams{Name: " Auto Farm ", Owner: "42"})
	require.NoError(t, err)
	assert.Equal(t, "Auto Farm", sc.Name)
	assert.Equal(t, "No description provided", sc.Description)
	assert.Equal(t, "42", sc.Owner)
	assert.Equal(t, clock.Now().Unix(), sc.CreatedAt)
	assert.Zero(t, sc.Downloads)
	assert.Zero(t, sc.Executions)

	tests := []struct {
		name string
		p    licensing.UploadParams
	}{
		{"missing name", licensing.UploadParams{Name: "   "}},
		{"long name", licensing.UploadParams{Name: strings.Repeat("n", licensing.MaxScriptNameLength+1)}},
		{"long description", licensing.UploadParams{Name: "ok", Description: strings.Repeat("d", licensing.MaxScriptDescriptionLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ks.UploadScript(ctx, tt.p)
			assert.ErrorIs(t, err, licensing.ErrInvalidScript)
		})
	}

	_, err = ks.UploadScript(ctx, licensing.UploadParams{Name: strings.Repeat("n", licensing.MaxScriptNameLength)})
	assert.NoError(t, err)
}

func TestUploadScript_RetriesOnCollision(t *testing.T) {
	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	i := 0
	gen := func() (string, error) {
		id := ids[i]
		i++
		return id, nil
	}
	ks, _ := newKeystore(t, licensing.WithScriptIDGenerator(gen))
	ctx := context.Background()

	first, err := ks.UploadScript(ctx, licensing.UploadParams{Name: "one"})
	require.NoError(t, err)
	second, err := ks.UploadScript(ctx, licensing.UploadParams{Name: "two"})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaa", first.ID)
	assert.Equal(t, "bbbbbbbb", second.ID)
}

func TestScriptCounters(t *testing.T) {
	ks, clock := newKeystore(t)
	ctx := context.Background()

	older, err := ks.UploadScript(ctx, licensing.UploadParams{Name: "older"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	newer, err := ks.UploadScript(ctx, licensing.UploadParams{Name: "newer"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ks.DownloadScript(ctx, older.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := ks.RecordExecution(ctx, older.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := ks.DownloadScript(ctx, " "+older.ID+" ")
	require.NoError(t, err)
	assert.Equal(t, 11, got.Downloads)
	assert.Equal(t, 10, got.Executions)

	_, err = ks.DownloadScript(ctx, "missing1")
	assert.ErrorIs(t, err, licensing.ErrScriptNotFound)
	_, err = ks.RecordExecution(ctx, "")
	assert.ErrorIs(t, err, licensing.ErrScriptNotFound)

	list, err := ks.ListScripts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	stats, err := ks.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scripts)
	assert.Equal(t, 11, stats.Downloads)
	assert.Equal(t, 10, stats.Executions)
}
