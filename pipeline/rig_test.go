package pipeline

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultRigConfigRoundTrip(t *testing.T) {
	data, err := MarshalRigConfig(DefaultRigConfig())
	require.NoError(t, err)

	var decoded RigConfig
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	require.Equal(t, 400, decoded.Width)
	require.Equal(t, 400, decoded.Height)
	require.NotEmpty(t, decoded.Skeleton)

	joints := make(map[string]RigJoint, len(decoded.Skeleton))
	for _, joint := range decoded.Skeleton {
		joints[joint.Name] = joint
	}

	root, ok := joints["root"]
	require.True(t, ok, "skeleton must carry a root joint")
	require.Empty(t, root.Parent)

	for name, joint := range joints {
		if name == "root" {
			continue
		}
		_, ok := joints[joint.Parent]
		require.True(t, ok, "joint %s references unknown parent %q", name, joint.Parent)
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	ws, err := newWorkspace(42)
	require.NoError(t, err)
	require.True(t, strings.Contains(ws.root, "greedot-run-42-"))

	dir, err := ws.Mkdir("parts")
	require.NoError(t, err)
	require.DirExists(t, dir)

	file := ws.Path("stylized.png")
	require.NoError(t, os.WriteFile(file, []byte("png"), 0o644))

	ws.Close()
	require.NoDirExists(t, ws.root)
	_, err = os.Stat(file)
	require.Error(t, err)

	// Close is idempotent.
	ws.Close()
}

func TestWorkspacesDoNotCollide(t *testing.T) {
	a, err := newWorkspace(7)
	require.NoError(t, err)
	defer a.Close()

	b, err := newWorkspace(7)
	require.NoError(t, err)
	defer b.Close()

	require.NotEqual(t, a.root, b.root)
}
