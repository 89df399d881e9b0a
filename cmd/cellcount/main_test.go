package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/cellcount-mcp/internal/batch"
	"github.com/ironsheep/cellcount-mcp/internal/inference"
)

const testEndpoint = "http://model.test"

// isolate keeps config lookups away from the developer's files and environment.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
}

func mockModelService(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, testEndpoint+"/load",
		httpmock.NewStringResponder(http.StatusOK, `{"model_type":"detect","names":{"0":"Platelets","1":"RBC","2":"WBC"}}`))
	httpmock.RegisterResponder(http.MethodPost, testEndpoint+"/predict",
		httpmock.NewStringResponder(http.StatusOK, `{"detections":[
			{"class_id":1,"label":"RBC","confidence":0.9,"box":[1,1,8,8]},
			{"class_id":1,"label":"RBC","confidence":0.8,"box":[10,10,18,18]},
			{"class_id":2,"label":"WBC","confidence":0.7,"box":[20,2,28,10]}
		]}`))
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o600))
	return path
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{220, 180, 180, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := rootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")

	require.NoError(t, err)
	assert.Contains(t, out, "cellcount dev")
	assert.Contains(t, out, "Git commit: unknown")
}

func TestBatch_WritesSummaryAndOutputs(t *testing.T) {
	isolate(t)
	mockModelService(t)

	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "results")
	writePNG(t, filepath.Join(in, "a.png"))
	writePNG(t, filepath.Join(in, "b.png"))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0o600))

	stdout, _, err := execute(t, "",
		"batch", "-i", in, "-o", out,
		"--model", writeModel(t), "--endpoint", testEndpoint,
		"--save-csv", "--save-annotated", "--log-level", "error")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Found 2 images")
	assert.Contains(t, stdout, "Images processed: 2")
	assert.Contains(t, stdout, "Total cells:      6")
	assert.Contains(t, stdout, "       RBC:      4 (66.67%)")
	assert.Contains(t, stdout, "       WBC:      2 (33.33%)")

	csvData, err := os.ReadFile(filepath.Join(out, batch.CSVName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a.png,2,1,0,3,66.7%,33.3%,0.0%", strings.TrimSpace(lines[1]))

	assert.FileExists(t, filepath.Join(out, "a_annotated.png"))
	assert.FileExists(t, filepath.Join(out, "b_annotated.png"))
}

func TestBatch_NoOutputsByDefault(t *testing.T) {
	isolate(t)
	mockModelService(t)

	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "results")
	writePNG(t, filepath.Join(in, "a.png"))

	_, _, err := execute(t, "",
		"batch", "-i", in, "-o", out,
		"--model", writeModel(t), "--endpoint", testEndpoint, "--log-level", "error")

	require.NoError(t, err)
	assert.NoDirExists(t, out)
}

func TestBatch_Errors(t *testing.T) {
	isolate(t)
	mockModelService(t)

	empty := t.TempDir()
	withImage := t.TempDir()
	writePNG(t, filepath.Join(withImage, "a.png"))
	model := writeModel(t)

	t.Run("missing input", func(t *testing.T) {
		_, _, err := execute(t, "", "batch", "-i", filepath.Join(empty, "nope"), "-o", empty,
			"--model", model, "--endpoint", testEndpoint)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input directory does not exist")
	})

	t.Run("missing model", func(t *testing.T) {
		_, _, err := execute(t, "", "batch", "-i", withImage, "-o", empty,
			"--model", filepath.Join(empty, "missing.pt"), "--endpoint", testEndpoint)
		require.Error(t, err)
		assert.True(t, errors.Is(err, inference.ErrModelLoad))
	})

	t.Run("no images", func(t *testing.T) {
		_, _, err := execute(t, "", "batch", "-i", empty, "-o", empty,
			"--model", model, "--endpoint", testEndpoint)
		require.Error(t, err)
		assert.True(t, errors.Is(err, batch.ErrNoImages))
	})

	t.Run("required flags", func(t *testing.T) {
		_, _, err := execute(t, "", "batch", "-i", withImage)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output")
	})

	t.Run("threshold out of range", func(t *testing.T) {
		_, _, err := execute(t, "", "batch", "-i", withImage, "-o", empty,
			"--model", model, "--endpoint", testEndpoint, "--conf", "1.5")
		require.Error(t, err)
	})
}

func TestServe_StartsWithoutModel(t *testing.T) {
	isolate(t)

	stdin := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"cell_normalize_label","arguments":{"label":"rbc"}}}` + "\n"
	stdout, stderr, err := execute(t, stdin,
		"serve", "--model", filepath.Join(t.TempDir(), "missing.pt"), "--endpoint", testEndpoint)

	require.NoError(t, err)
	assert.Contains(t, stderr, "model not loaded")

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stdout)), &resp))
	assert.Equal(t, 1, resp.ID)
	require.Len(t, resp.Result.Content, 1)
	assert.Contains(t, resp.Result.Content[0].Text, `"normalized": "RBC"`)
}
