package schemas_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagewalk/api/schemas"
)

func TestNewHAR(t *testing.T) {
	har := schemas.NewHAR()
	assert.Equal(t, "1.2", har.Log.Version)
	assert.Equal(t, "pagewalk", har.Log.Creator.Name)
	require.NotNil(t, har.Log.Entries)

	// An empty log still serializes entries as an array.
	data, err := json.Marshal(har)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entries":[]`)
}

func TestPageSummary_JSON(t *testing.T) {
	t.Run("FailedFetchIsCompact", func(t *testing.T) {
		s := schemas.PageSummary{URL: "https://example.test/", FetchedAt: getTestTime(t), Error: "dial tcp: refused"}
		data, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"url": "https://example.test/",
			"fetchedAt": "2025-10-26T10:00:00.123456789Z",
			"error": "dial tcp: refused"
		}`, string(data))
	})

	t.Run("FormWithoutParametersKeepsArray", func(t *testing.T) {
		f := schemas.FormSummary{Method: "GET", Action: "https://example.test/s", Enctype: "query", Parameters: []schemas.NVPair{}}
		data, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `{"method":"GET","action":"https://example.test/s","enctype":"query","parameters":[]}`, string(data))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		in := schemas.PageSummary{
			URL:       "https://example.test/",
			FinalURL:  "https://example.test/home",
			Status:    200,
			FetchedAt: getTestTime(t),
			Tables:    [][][]string{{{"a", "b"}, {"c", ""}}},
			Frames:    []schemas.FrameSummary{{Selector: "w1/i0", Name: "left"}},
		}
		data, err := json.Marshal(in)
		require.NoError(t, err)
		var out schemas.PageSummary
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in, out)
	})
}
