package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLClassification(t *testing.T) {
	assert.True(t, IsHTTP("https://data.example.gov/granule.nc"))
	assert.True(t, IsHTTP("http://localhost:3000/file"))
	assert.False(t, IsHTTP("s3://bucket/key"))
	assert.False(t, IsHTTP("file:///tmp/granule.nc"))

	assert.True(t, IsS3("s3://bucket/key"))
	assert.True(t, IsS3("S3://bucket/key"))
	assert.False(t, IsS3("https://bucket.s3.amazonaws.com/key"))

	assert.True(t, IsFileURL("file:///tmp/granule.nc"))
	assert.False(t, IsFileURL("/tmp/granule.nc"))
	assert.Equal(t, "/tmp/granule.nc", FileURLPath("file:///tmp/granule.nc"))
}

func TestLocalhostURL(t *testing.T) {
	assert.Equal(t, "http://stack:3000/f", LocalhostURL("http://localhost:3000/f", "stack"))
	assert.Equal(t, "http://localhost:3000/f", LocalhostURL("http://localhost:3000/f", ""))
	assert.Equal(t, "http://remote.example.com/f", LocalhostURL("http://remote.example.com/f", "stack"))
}

func TestWithRequestID(t *testing.T) {
	assert.Equal(t,
		"https://data.example.gov/g.nc?A-api-request-uuid=req-1",
		WithRequestID("https://data.example.gov/g.nc", "req-1"))

	// Existing query parameters survive.
	got := WithRequestID("https://data.example.gov/g.nc?foo=bar", "req-1")
	assert.Contains(t, got, "A-api-request-uuid=req-1")
	assert.Contains(t, got, "foo=bar")

	// Empty id and non-HTTP URLs pass through untouched.
	assert.Equal(t, "https://data.example.gov/g.nc", WithRequestID("https://data.example.gov/g.nc", ""))
	assert.Equal(t, "s3://bucket/key", WithRequestID("s3://bucket/key", "req-1"))
}

func TestDestinationFilename(t *testing.T) {
	rawURL := "https://data.example.gov/granules/G0001.nc4?download=true"
	sum := sha256.Sum256([]byte(rawURL))
	want := filepath.Join("/out", hex.EncodeToString(sum[:])+".nc4")

	assert.Equal(t, want, DestinationFilename("/out", rawURL))

	// Same URL always maps to the same name; different URLs never collide.
	assert.Equal(t, DestinationFilename("/out", rawURL), DestinationFilename("/out", rawURL))
	assert.NotEqual(t, DestinationFilename("/out", rawURL),
		DestinationFilename("/out", rawURL+"&page=2"))
}

func TestGenerateOutputFilename(t *testing.T) {
	url := "https://example.com/fake-path/abad1dea.tiff?foo=bar&cheese=zubas"

	tests := []struct {
		name   string
		naming OutputNaming
		want   string
	}{
		{"plain", OutputNaming{}, "abad1dea.tiff"},
		{"new extension", OutputNaming{Ext: "zarr"}, "abad1dea.zarr"},
		{"dotted extension", OutputNaming{Ext: ".zarr"}, "abad1dea.zarr"},
		{"single variable", OutputNaming{VariableSubset: []string{"BandOne"}}, "abad1dea_BandOne.tiff"},
		{"multiple variables omitted", OutputNaming{VariableSubset: []string{"BandOne", "BandTwo"}}, "abad1dea.tiff"},
		{"regridded", OutputNaming{IsRegridded: true}, "abad1dea_regridded.tiff"},
		{"subsetted", OutputNaming{IsSubsetted: true}, "abad1dea_subsetted.tiff"},
		{
			"all operations",
			OutputNaming{VariableSubset: []string{"BandOne"}, IsRegridded: true, IsSubsetted: true, IsReformatted: true},
			"abad1dea_BandOne_regridded_subsetted_reformatted.tiff",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateOutputFilename(url, tt.naming))
		})
	}
}

func TestGenerateOutputFilenameDoesNotDuplicateSuffixes(t *testing.T) {
	// A name produced by one service run through another keeps one copy of
	// each suffix.
	first := GenerateOutputFilename("https://example.com/data/granule.nc4",
		OutputNaming{VariableSubset: []string{"red_var"}, IsSubsetted: true})
	assert.Equal(t, "granule_red_var_subsetted.nc4", first)

	second := GenerateOutputFilename("https://example.com/results/"+first,
		OutputNaming{VariableSubset: []string{"red_var"}, IsRegridded: true, IsSubsetted: true})
	assert.Equal(t, "granule_red_var_regridded_subsetted.nc4", second)
}

func TestGenerateOutputFilenameSanitizes(t *testing.T) {
	// Escaped path separators and colons collapse to single underscores.
	got := GenerateOutputFilename("https://example.com/dir/sub%2Fdir%3A1.nc", OutputNaming{})
	assert.Equal(t, "sub_dir_1.nc", got)

	// Underscores never touch the extension dot.
	got = GenerateOutputFilename("https://example.com/dir/name_.nc", OutputNaming{})
	assert.Equal(t, "name.nc", got)
}
