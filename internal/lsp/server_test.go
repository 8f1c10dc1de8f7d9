package lsp

import (
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project"
	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/update"
	"github.com/dshills/buildsync/internal/project/vfs"
	"github.com/dshills/buildsync/internal/project/workspace"
)

type pomSupport struct {
	updates atomic.Int32
}

func (s *pomSupport) ID() string { return "pom" }

func (s *pomSupport) IsBuildFile(r *workspace.Resource) bool {
	return buildsupport.MatchesName(r, "pom.xml")
}

func (s *pomSupport) AppliesTo(*workspace.Project) bool { return true }

func (s *pomSupport) Update(context.Context, *workspace.Project) error {
	s.updates.Add(1)
	return nil
}

type serverEnv struct {
	peer    *peer
	prefs   *config.Store
	manager *project.Manager
	support *pomSupport
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	ctx := context.Background()

	fsys := vfs.NewMemFS()
	require.NoError(t, fsys.AddFile("/ws/proj/pom.xml", "<project/>"))
	ws := workspace.New("/ws", workspace.WithVFS(fsys))
	_, err := ws.CreateProject(ctx, workspace.Description{Name: "proj"})
	require.NoError(t, err)
	require.NoError(t, ws.OpenProject(ctx, "proj"))

	env := &serverEnv{
		prefs:   config.NewStore(config.Default()),
		support: &pomSupport{},
	}

	var server *Server
	env.peer, _ = newPeer(t, func(r io.Reader, w io.Writer, c io.Closer) *Transport {
		tr := NewTransport(r, w, c)
		client := NewClient(tr, nil)
		env.manager = project.NewManager(ws, importer.NewRegistry(),
			project.WithPreferences(env.prefs),
			project.WithSchedulerOptions(update.WithStatusSender(client)))
		server = NewServer(tr, client, env.manager, WithServerInfo("buildsync", "test"))
		return tr
	}, nil)
	// Serve has started on the transport; the server connects the notifier.
	env.manager.SetNotifier(server.client)
	env.manager.ActiveSupport().Set(env.support)
	t.Cleanup(env.manager.Close)
	return env
}

func TestServerInitialize(t *testing.T) {
	env := newServerEnv(t)

	env.peer.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"rootUri":"file:///ws"}}`)
	f := env.peer.next()
	require.Nil(t, f.Error)

	var res InitializeResult
	require.NoError(t, json.Unmarshal(f.Result, &res))
	require.NotNil(t, res.Capabilities.ExecuteCommandProvider)
	assert.Equal(t, []string{project.ConfigurationStatusCommand}, res.Capabilities.ExecuteCommandProvider.Commands)
	assert.Equal(t, "test", res.ServerInfo.Version)
}

func TestServerPromptsOnBuildFileChange(t *testing.T) {
	env := newServerEnv(t)
	uri := workspace.PathToURI("/ws/proj/pom.xml")

	env.peer.send(`{"jsonrpc":"2.0","method":"workspace/didChangeWatchedFiles","params":{"changes":[{"uri":"` + uri + `","type":2}]}}`)
	f := env.peer.next()
	assert.Equal(t, MethodActionableNotification, f.Method)

	var n project.ActionableNotification
	require.NoError(t, json.Unmarshal(f.Params, &n))
	assert.Equal(t, project.ConfigurationPrompt, n.Message)
	assert.Equal(t, project.SeverityInfo, n.Severity)
	require.Len(t, n.Commands, 3)
	assert.Equal(t, project.ChoiceAlways, n.Commands[2].Title)

	// Answer "Always" with the arguments from the prompt.
	args, err := json.Marshal(n.Commands[2].Arguments)
	require.NoError(t, err)
	env.peer.send(`{"jsonrpc":"2.0","id":2,"method":"workspace/executeCommand","params":{"command":"` +
		n.Commands[2].Command + `","arguments":` + string(args) + `}}`)

	status := env.peer.next()
	assert.Equal(t, MethodStatus, status.Method)
	var sp StatusParams
	require.NoError(t, json.Unmarshal(status.Params, &sp))
	assert.Equal(t, StatusMessage, sp.Type)
	assert.Equal(t, "Updating proj configuration", sp.Message)

	resp := env.peer.next()
	assert.JSONEq(t, `2`, string(resp.ID))
	assert.Nil(t, resp.Error)

	env.manager.Scheduler().Wait()
	assert.Equal(t, int32(1), env.support.updates.Load())
	assert.Equal(t, config.PolicyAutomatic, env.prefs.UpdatePolicy())
}

func TestServerExecuteCommandErrors(t *testing.T) {
	env := newServerEnv(t)

	env.peer.send(`{"jsonrpc":"2.0","id":1,"method":"workspace/executeCommand","params":{"command":"nope"}}`)
	f := env.peer.next()
	require.NotNil(t, f.Error)
	assert.Equal(t, CodeMethodNotFound, f.Error.Code)

	env.peer.send(`{"jsonrpc":"2.0","id":2,"method":"workspace/executeCommand","params":{"command":"` +
		project.ConfigurationStatusCommand + `","arguments":[{"uri":"file:///ws/proj/pom.xml"},"sometimes"]}}`)
	f = env.peer.next()
	require.NotNil(t, f.Error)
	assert.Equal(t, CodeInvalidParams, f.Error.Code)

	env.peer.send(`{"jsonrpc":"2.0","id":3,"method":"workspace/executeCommand","params":{"command":"` +
		project.ConfigurationStatusCommand + `","arguments":[{"uri":"file:///elsewhere/pom.xml"},"interactive"]}}`)
	f = env.peer.next()
	require.NotNil(t, f.Error)
	assert.Equal(t, CodeRequestFailed, f.Error.Code)
}

func TestServerDisabledPolicyStaysQuiet(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.prefs.SetUpdatePolicy(config.PolicyDisabled))
	uri := workspace.PathToURI("/ws/proj/pom.xml")

	env.peer.send(`{"jsonrpc":"2.0","method":"workspace/didChangeWatchedFiles","params":{"changes":[{"uri":"` + uri + `","type":2},{"uri":"` + uri + `","type":9}]}}`)
	env.peer.send(`{"jsonrpc":"2.0","id":1,"method":"shutdown"}`)

	// The next frame is the shutdown response; no prompt was sent.
	f := env.peer.next()
	assert.JSONEq(t, `1`, string(f.ID))
	assert.Equal(t, int32(0), env.support.updates.Load())
}

func TestServerExit(t *testing.T) {
	env := newServerEnv(t)

	env.peer.send(`{"jsonrpc":"2.0","method":"exit"}`)
	select {
	case err := <-env.peer.served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestChangeKind(t *testing.T) {
	tests := []struct {
		in   FileChangeType
		want project.ChangeKind
		ok   bool
	}{
		{FileCreated, project.Created, true},
		{FileChanged, project.Changed, true},
		{FileDeleted, project.Deleted, true},
		{FileChangeType(0), 0, false},
	}
	for _, tt := range tests {
		got, ok := changeKind(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ok, ok)
	}
}

func TestClientReportsProgress(t *testing.T) {
	p, tr := newPeer(t, plainTransport, nil)
	client := NewClient(tr, nil)

	tracker := progress.New(context.Background(), "Initialize workspace", 2, client)
	tracker.Worked(1)
	tracker.Done()

	var reports []ProgressReportParams
	for range 3 {
		f := p.next()
		require.Equal(t, MethodProgressReport, f.Method)
		var r ProgressReportParams
		require.NoError(t, json.Unmarshal(f.Params, &r))
		reports = append(reports, r)
	}

	assert.Equal(t, 0, reports[0].WorkDone)
	assert.Equal(t, 50, reports[1].WorkDone)
	assert.Equal(t, 100, reports[2].WorkDone)
	assert.True(t, reports[2].Complete)
	assert.Equal(t, reports[0].ID, reports[2].ID)
	assert.NotEmpty(t, reports[0].ID)

	// A new run of the same task gets a new id.
	assert.NotEqual(t, reports[0].ID, client.progressID("Initialize workspace", false))
}
