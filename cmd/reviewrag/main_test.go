package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewsCSV = `business_name,review,response,rating,avg_rating,num_of_reviews
Cafe X,The coffee was excellent,,5,4.1,12
Cafe X,Coffee was cold and bitter,We are sorry,2,4.1,12
Cafe X,Lovely coffee and cake,,4,4.1,12
Cafe X,Great coffee great people,Thank you!,4.5,4.1,12
Cafe X,Awful coffee,,1,4.1,12
Deli Y,Best sandwich in town,,5,4.8,3
Juice Z,,Thanks for stopping by,5,5,1
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "reviews.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(reviewsCSV), 0o644))
	cfg := fmt.Sprintf(`index:
  type: bolt
  dir: %s
  collection: reviews
embedder:
  type: hashing
  dimension: 128
ingest:
  dataset: %s
log:
  level: error
`, filepath.Join(dir, "index"), csvPath)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIndexCmd(t *testing.T) {
	cfg := writeFixture(t)
	out, err := run(t, "--config", cfg, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Index ready: 7 vectors")

	out, err = run(t, "--config", cfg, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Index ready: 7 vectors", "second run adds nothing")

	out, err = run(t, "--config", cfg, "--force-init", "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Index ready: 7 vectors")
}

func TestSearchCmd_PositiveRating(t *testing.T) {
	cfg := writeFixture(t)
	out, err := run(t, "--config", cfg, "search", "--business", "Cafe X", "--query", "coffee", "--k", "5", "--rating", "positive")
	require.NoError(t, err)
	assert.Contains(t, out, "3 relevant reviews found for Cafe X")
	assert.NotContains(t, out, "rating=2")
	assert.NotContains(t, out, "rating=1")
	assert.NotContains(t, out, "sandwich")
}

func TestSearchCmd_UnknownBusiness(t *testing.T) {
	cfg := writeFixture(t)
	out, err := run(t, "--config", cfg, "search", "--business", "Nowhere")
	require.NoError(t, err)
	assert.Contains(t, out, "No relevant reviews found for Nowhere")
}

func TestSearchCmd_Errors(t *testing.T) {
	cfg := writeFixture(t)
	_, err := run(t, "--config", cfg, "search")
	assert.Error(t, err, "business is required")

	_, err = run(t, "--config", cfg, "search", "--business", "Cafe X", "--rating", "great")
	assert.ErrorContains(t, err, "unknown rating category")

	_, err = run(t, "--config", cfg, "search", "--business", " ")
	assert.ErrorContains(t, err, "invalid filter")
}

func TestSummarizeCmd(t *testing.T) {
	cfg := writeFixture(t)
	out, err := run(t, "--config", cfg, "summarize", "--business", "Cafe X", "--rating", "negative")
	require.NoError(t, err)
	assert.Contains(t, out, "Coffee was cold and bitter.")
	assert.Contains(t, out, "Awful coffee.")
	assert.NotContains(t, out, "sorry", "owner responses are not summarized")

	out, err = run(t, "--config", cfg, "summarize", "--business", "Nowhere")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to summarize for Nowhere")

	out, err = run(t, "--config", cfg, "summarize", "--business", "Juice Z")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to summarize for Juice Z", "owner-only reviews have no customer text")
}

func TestIndexDirFlagOverridesConfig(t *testing.T) {
	cfg := writeFixture(t)
	dir := filepath.Join(t.TempDir(), "elsewhere")
	out, err := run(t, "--config", cfg, "--index-dir", dir, "index")
	require.NoError(t, err)
	assert.Contains(t, out, dir)
	assert.FileExists(t, filepath.Join(dir, "reviews.complete"))
}

func TestChatCmd_RequiresAPIKey(t *testing.T) {
	cfg := writeFixture(t)
	t.Setenv("OPENAI_API_KEY", "")
	_, err := run(t, "--config", cfg, "chat")
	assert.ErrorContains(t, err, "missing API key")
}
