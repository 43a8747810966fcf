package engine

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- streamMessages tests ---

// TestStreamMessages_DrainsQuietly verifies that a nil output writer
// drains a healthy stream without error and still delivers aux payloads.
func TestStreamMessages_DrainsQuietly(t *testing.T) {
	stream := strings.Join([]string{
		`{"stream":"Step 1/4 : FROM ubuntu:20.04\n"}`,
		`{"stream":" ---> 2b4cba85892a\n"}`,
		`{"aux":{"ID":"sha256:f00d"}}`,
	}, "\n")

	var auxID string
	err := streamMessages(strings.NewReader(stream), nil, func(msg jsonmessage.JSONMessage) {
		if msg.Aux != nil {
			var result struct {
				ID string `json:"ID"`
			}
			require.NoError(t, json.Unmarshal(*msg.Aux, &result))
			auxID = result.ID
		}
	})

	require.NoError(t, err)
	assert.Equal(t, "sha256:f00d", auxID)
}

// TestStreamMessages_ReturnsStreamError verifies that an error message
// inside the stream surfaces as the returned error.
func TestStreamMessages_ReturnsStreamError(t *testing.T) {
	stream := `{"stream":"Step 2/4 : RUN apt-get update\n"}` + "\n" +
		`{"errorDetail":{"message":"The command '/bin/sh -c apt-get update' returned a non-zero code: 100"},"error":"The command '/bin/sh -c apt-get update' returned a non-zero code: 100"}`

	err := streamMessages(strings.NewReader(stream), nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-zero code: 100")
}

// TestStreamMessages_RendersToWriter verifies that a non-nil output
// writer receives the rendered progress lines.
func TestStreamMessages_RendersToWriter(t *testing.T) {
	stream := `{"stream":"Step 1/4 : FROM ubuntu:20.04\n"}`

	var out bytes.Buffer
	err := streamMessages(strings.NewReader(stream), &out, nil)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Step 1/4 : FROM ubuntu:20.04")
}

// TestStreamMessages_EmptyStream verifies that an empty stream is not an
// error.
func TestStreamMessages_EmptyStream(t *testing.T) {
	err := streamMessages(strings.NewReader(""), nil, nil)
	assert.NoError(t, err)
}

// --- commitChanges tests ---

// TestCommitChanges verifies the Dockerfile-style change list: one LABEL
// per key in sorted order, then the CMD reset.
func TestCommitChanges(t *testing.T) {
	changes := commitChanges(map[string]string{
		"kiln.recipe":     "fireshape",
		"kiln.managed-by": "kiln",
	}, []string{"/bin/bash"})

	require.Len(t, changes, 3)
	assert.Equal(t, `LABEL kiln.managed-by="kiln"`, changes[0])
	assert.Equal(t, `LABEL kiln.recipe="fireshape"`, changes[1])
	assert.Equal(t, `CMD ["/bin/bash"]`, changes[2])
}

// TestCommitChanges_QuotesValues verifies that label values with spaces
// survive quoting.
func TestCommitChanges_QuotesValues(t *testing.T) {
	changes := commitChanges(map[string]string{
		"kiln.packages": "build-essential,python3 python3-pip",
	}, []string{"/bin/sh"})

	assert.Equal(t, `LABEL kiln.packages="build-essential,python3 python3-pip"`, changes[0])
}

// TestCommitChanges_NoLabels verifies the degenerate case still resets
// the command.
func TestCommitChanges_NoLabels(t *testing.T) {
	changes := commitChanges(nil, []string{"/bin/sh", "-l"})

	require.Len(t, changes, 1)
	assert.Equal(t, `CMD ["/bin/sh","-l"]`, changes[0])
}
