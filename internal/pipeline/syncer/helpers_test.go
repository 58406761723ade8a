package syncer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func jsonField(t *testing.T, raw json.RawMessage, field string) string {
	t.Helper()
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &obj))
	return string(obj[field])
}
