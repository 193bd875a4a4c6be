package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/dispatch/pkg/toolregistry"
)

func TestToolsCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		cmd := GetRootCmd()

		found := false
		for _, c := range cmd.Commands() {
			if c.Name() == "tools" {
				found = true
				break
			}
		}
		assert.True(t, found, "tools command should exist")
	})

	t.Run("lists registered tools", func(t *testing.T) {
		defer func() { toolsJSON = false }()

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"tools"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		got := output.String()
		assert.Contains(t, got, "NAME")
		assert.Contains(t, got, "clock")
		assert.Contains(t, got, "read-only")
		assert.Contains(t, got, "write_note")
		assert.Contains(t, got, "yes")
	})

	t.Run("json output", func(t *testing.T) {
		defer func() { toolsJSON = false }()

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"tools", "--json"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		var descriptors []toolregistry.Descriptor
		require.NoError(t, json.Unmarshal(output.Bytes(), &descriptors))
		assert.Len(t, descriptors, 6)
		assert.Equal(t, "clock", descriptors[0].Name)
	})
}
