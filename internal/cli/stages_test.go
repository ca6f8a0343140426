package cli

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestStages_Text(t *testing.T) {
	stdout, _, err := execute(t, nil, "stages")
	require.NoError(t, err)

	newGoldie(t).Assert(t, "stages", []byte(stdout))
}

func TestStages_JSON(t *testing.T) {
	stdout, _, err := execute(t, nil, "stages", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   StageTable `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 7)
	assert.Equal(t, "source", resp.Data[0].Name)
	assert.Equal(t, StageInfo{
		Name:       "object",
		Default:    "binary",
		Encodings:  []string{"binary"},
		Extensions: []string{".o", ".obj"},
	}, resp.Data[5])
}
