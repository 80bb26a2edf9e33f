package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartograph-backend/internal/errors"
)

func TestReadOperations(t *testing.T) {
	input := strings.Join([]string{
		`{"op":"DEFINE","type":"node","label":"person","description":"a person"}`,
		``,
		`{"op":"CREATE","type":"node","id":"person:1","label":"person","set_properties":{"name":"ada"}}`,
		`  `,
		`{"op":"CREATE","type":"edge","id":"knows:1","label":"knows","start_id":"person:1","end_id":"person:2"}`,
		`{"op":"DELETE","type":"node","id":"person:9"}`,
	}, "\n")

	ops, err := ReadOperations(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ops, 4, "blank lines are skipped")

	assert.Equal(t, OpDefine, ops[0].Op)
	assert.Equal(t, "person", ops[0].Label)
	assert.Equal(t, "person:1", ops[1].ID)
	assert.Equal(t, Properties{"name": "ada"}, ops[1].SetProperties)
	assert.Equal(t, "person:1", ops[2].StartID)
	assert.Equal(t, OpDelete, ops[3].Op)
}

func TestReadOperations_MalformedLine(t *testing.T) {
	input := `{"op":"CREATE","type":"node","id":"person:1","label":"person"}
{"op":"CREATE","type":"node"`

	_, err := ReadOperations(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadOperations_InvalidOperationKeepsKind(t *testing.T) {
	input := `{"op":"CREATE","type":"node","id":"x","label":"bad label"}`

	_, err := ReadOperations(strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidLabelName), "got %v", err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReadOperations_Empty(t *testing.T) {
	ops, err := ReadOperations(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ops)
}
