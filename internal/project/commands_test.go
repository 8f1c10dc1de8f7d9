package project

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project/workspace"
)

func rawArgs(t *testing.T, args ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		require.NoError(t, err)
		out[i] = data
	}
	return out
}

// commandEnv is a manager with an open project "proj" owning pom.xml and
// an active support counting updates.
func commandEnv(t *testing.T) (*testEnv, *fakeSupport) {
	t.Helper()
	env := newEnv(t)
	require.NoError(t, env.fs.AddFile("/ws/proj/pom.xml", "<project/>"))
	env.openProject(t, "proj")

	support := &fakeSupport{names: []string{"pom.xml"}}
	env.manager.ActiveSupport().Set(support)
	return env, support
}

func TestPromptChoices(t *testing.T) {
	uri := fileURI("/ws/proj/pom.xml")
	prompt := configurationPrompt(uri)

	tests := []struct {
		choice  string
		policy  config.UpdatePolicy
		updates int32
	}{
		{ChoiceNever, config.PolicyDisabled, 0},
		{ChoiceNow, config.PolicyInteractive, 1},
		{ChoiceAlways, config.PolicyAutomatic, 1},
	}
	for i, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			env, support := commandEnv(t)
			cmd := prompt.Commands[i]
			require.Equal(t, tt.choice, cmd.Title)

			require.True(t, env.manager.CanExecute(cmd.Command))
			_, err := env.manager.ExecuteCommand(context.Background(), cmd.Command, rawArgs(t, cmd.Arguments...))
			require.NoError(t, err)

			env.manager.Scheduler().Wait()
			assert.Equal(t, tt.updates, support.updates.Load())
			assert.Equal(t, tt.policy, env.prefs.UpdatePolicy())
		})
	}
}

func TestHandleConfigurationStatusUnresolved(t *testing.T) {
	env, support := commandEnv(t)

	err := env.manager.HandleConfigurationStatus(context.Background(), fileURI("/elsewhere/pom.xml"), config.PolicyInteractive)
	require.ErrorIs(t, err, ErrUnresolved)

	err = env.manager.HandleConfigurationStatus(context.Background(), "jdt://x", config.PolicyInteractive)
	require.ErrorIs(t, err, workspace.ErrUnsupportedScheme)

	env.manager.Scheduler().Wait()
	assert.Zero(t, support.updates.Load())
}

func TestHandleConfigurationStatusDisabledNeedsNoResource(t *testing.T) {
	env, _ := commandEnv(t)

	err := env.manager.HandleConfigurationStatus(context.Background(), "jdt://x", config.PolicyDisabled)
	require.NoError(t, err)
	assert.Equal(t, config.PolicyDisabled, env.prefs.UpdatePolicy())
}

func TestExecuteCommandErrors(t *testing.T) {
	env, _ := commandEnv(t)
	ctx := context.Background()
	ref := DocumentRef{URI: fileURI("/ws/proj/pom.xml")}

	_, err := env.manager.ExecuteCommand(ctx, "buildsync.unknown", nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.False(t, env.manager.CanExecute("buildsync.unknown"))

	tests := []struct {
		name string
		args []json.RawMessage
	}{
		{"no arguments", nil},
		{"one argument", rawArgs(t, ref)},
		{"empty document", rawArgs(t, DocumentRef{}, "automatic")},
		{"policy not a string", rawArgs(t, ref, 3)},
		{"unknown policy", rawArgs(t, ref, "sometimes")},
		{"document not an object", []json.RawMessage{json.RawMessage(`"x"`), json.RawMessage(`"automatic"`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.ExecuteCommand(ctx, ConfigurationStatusCommand, tt.args)
			require.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
	assert.Equal(t, config.PolicyInteractive, env.prefs.UpdatePolicy())
}

func TestUpdateProjectWithoutSupport(t *testing.T) {
	env, _ := commandEnv(t)
	env.manager.ActiveSupport().Reset()

	assert.Empty(t, env.manager.UpdateProject(env.ws.Project("proj")))
}

func TestManagerFileChangedAutomatic(t *testing.T) {
	env, support := commandEnv(t)
	require.NoError(t, env.prefs.SetUpdatePolicy(config.PolicyAutomatic))

	env.manager.FileChanged(context.Background(), fileURI("/ws/proj/pom.xml"), Changed)
	env.manager.Scheduler().Wait()
	assert.Equal(t, int32(1), support.updates.Load())
	assert.True(t, env.manager.IsBuildFile(env.ws.Project("proj").File("pom.xml")))
}

func TestResolveStandaloneFile(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	require.NoError(t, env.fs.AddFile("/tmp/scratch/Hello.java", "class Hello {}"))
	uri := fileURI("/tmp/scratch/Hello.java")

	_, err := env.manager.ResolveStandaloneFile(ctx, uri)
	require.ErrorIs(t, err, ErrNoDefaultProject)

	_, err = env.manager.InitializeProjects(ctx, "", nil)
	require.NoError(t, err)

	r, err := env.manager.ResolveStandaloneFile(ctx, uri)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Linked())
	assert.Equal(t, "/"+DefaultProjectName+"/src/Hello.java", r.Path())
	assert.Equal(t, "/tmp/scratch/Hello.java", r.Location())

	again, err := env.ws.FindResource(uri)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, r.Path(), again.Path())

	// Files inside a project are returned as they are.
	env.openProject(t, "proj")
	require.NoError(t, env.fs.AddFile("/ws/proj/A.java", "class A {}"))
	inside, err := env.manager.ResolveStandaloneFile(ctx, fileURI("/ws/proj/A.java"))
	require.NoError(t, err)
	assert.Equal(t, "/proj/A.java", inside.Path())
	assert.False(t, inside.Linked())
}

func TestInitErrorUnwrap(t *testing.T) {
	err := &InitError{Step: "bootstrap", Err: workspace.ErrInvalidName}
	assert.ErrorIs(t, err, workspace.ErrInvalidName)
	assert.Contains(t, err.Error(), "bootstrap")
	assert.False(t, IsCanceled(err))
}
