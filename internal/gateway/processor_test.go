package gateway

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlojanssen/refstream/internal/planner"
	"github.com/arlojanssen/refstream/internal/query"
)

// writeFakeTool writes a shell script standing in for samtools/bcftools/
// bamsormadup: any argument that names a real file on disk gets cat'd to
// stdout in argument order; with no such argument it falls back to
// forwarding stdin, which is exactly the shape every stage in a plan needs
// (the head stage reads real files, every later stage reads its
// predecessor's piped stdout).
func writeFakeTool(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "faketool.sh")
	script := `#!/bin/sh
matched=0
for arg in "$@"; do
  if [ -f "$arg" ]; then
    cat "$arg"
    matched=1
  fi
done
if [ "$matched" = "0" ]; then
  cat
fi
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func md5Hex(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestProcessor_Process_SingleFile(t *testing.T) {
	tool := writeFakeTool(t)
	dataDir := t.TempDir()
	dataPath := filepath.Join(dataDir, "a.bam")
	require.NoError(t, os.WriteFile(dataPath, []byte("fake-bam-bytes"), 0o644))

	p := &Processor{
		Tools: planner.ToolPaths{
			AlignmentToolkit: tool,
			DuplicateMarker:  tool,
			VariantCaller:    tool,
		},
		TempDir: t.TempDir(),
		Grace:   2 * time.Second,
	}

	q := query.Query{
		Files: []query.FileRef{{DataObject: "a.bam", Path: dataPath}},
	}

	req := httptest.NewRequest(http.MethodGet, "/sample?accession=a", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, p.Process(rec, req, q))

	assert.Equal(t, "fake-bam-bytes", rec.Body.String())
	assert.Equal(t, "false", rec.Header().Get("Data-Truncated"))
	assert.Equal(t, md5Hex("fake-bam-bytes"), rec.Header().Get("Checksum"))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestProcessor_Process_SAMIsTextContentType(t *testing.T) {
	tool := writeFakeTool(t)
	dataDir := t.TempDir()
	dataPath := filepath.Join(dataDir, "a.sam")
	require.NoError(t, os.WriteFile(dataPath, []byte("@HD\tVN:1.6\n"), 0o644))

	p := &Processor{
		Tools: planner.ToolPaths{
			AlignmentToolkit: tool,
			DuplicateMarker:  tool,
			VariantCaller:    tool,
		},
		TempDir: t.TempDir(),
		Grace:   2 * time.Second,
	}

	q := query.Query{
		Files:  []query.FileRef{{DataObject: "a.sam", Path: dataPath}},
		Format: query.SAM,
	}

	req := httptest.NewRequest(http.MethodGet, "/sample?accession=a&format=sam", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, p.Process(rec, req, q))

	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestProcessor_Process_MultiFileMergeConcatenatesAndCleansUpTempDir(t *testing.T) {
	tool := writeFakeTool(t)
	dataDir := t.TempDir()
	pathA := filepath.Join(dataDir, "a.bam")
	pathB := filepath.Join(dataDir, "b.bam")
	require.NoError(t, os.WriteFile(pathA, []byte("AAA"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("BBB"), 0o644))

	baseTemp := t.TempDir()
	p := &Processor{
		Tools: planner.ToolPaths{
			AlignmentToolkit: tool,
			DuplicateMarker:  tool,
			VariantCaller:    tool,
		},
		TempDir: baseTemp,
		Grace:   2 * time.Second,
	}

	q := query.Query{
		Files: []query.FileRef{
			{DataObject: "a.bam", Path: pathA},
			{DataObject: "b.bam", Path: pathB},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/sample?accession=a&accession=b", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, p.Process(rec, req, q))

	assert.Equal(t, "AAABBB", rec.Body.String())
	assert.Equal(t, md5Hex("AAABBB"), rec.Header().Get("Checksum"))

	entries, err := os.ReadDir(baseTemp)
	require.NoError(t, err)
	assert.Empty(t, entries, "per-request merge temp dir must be cleaned up")
}

func TestProcessor_PureQueries(t *testing.T) {
	p := &Processor{}

	assert.Equal(t, query.SupportedFormats(), p.SupportedFormats())
	assert.Equal(t, query.DefaultFormat, p.DefaultFormat())
	assert.Equal(t, query.TextualFormats(), p.TextualFormats())
}
