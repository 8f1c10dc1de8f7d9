package lsp

import "encoding/json"

// Methods handled or sent by the server.
const (
	MethodInitialize            = "initialize"
	MethodShutdown              = "shutdown"
	MethodExit                  = "exit"
	MethodDidChangeWatchedFiles = "workspace/didChangeWatchedFiles"
	MethodExecuteCommand        = "workspace/executeCommand"

	MethodActionableNotification = "language/actionableNotification"
	MethodStatus                 = "language/status"
	MethodProgressReport         = "language/progressReport"
)

// FileChangeType is the LSP file change type.
type FileChangeType int

// File change types.
const (
	FileCreated FileChangeType = 1
	FileChanged FileChangeType = 2
	FileDeleted FileChangeType = 3
)

// FileEvent describes one changed file.
type FileEvent struct {
	URI  string         `json:"uri"`
	Type FileChangeType `json:"type"`
}

// DidChangeWatchedFilesParams are the params of workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

// ExecuteCommandParams are the params of workspace/executeCommand.
type ExecuteCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// InitializeParams holds the fields of initialize the server reads.
type InitializeParams struct {
	ProcessID *int   `json:"processId,omitempty"`
	RootURI   string `json:"rootUri,omitempty"`
	RootPath  string `json:"rootPath,omitempty"`
}

// InitializeResult is the answer to initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerCapabilities advertises what the server handles.
type ServerCapabilities struct {
	ExecuteCommandProvider *ExecuteCommandOptions `json:"executeCommandProvider,omitempty"`
}

// ExecuteCommandOptions lists the commands the server executes.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

// ServerInfo names the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// StatusParams are the params of language/status.
type StatusParams struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ProgressReportParams are the params of language/progressReport.
type ProgressReportParams struct {
	ID        string `json:"id"`
	Task      string `json:"task"`
	SubTask   string `json:"subTask,omitempty"`
	Status    string `json:"status"`
	WorkDone  int    `json:"workDone"`
	TotalWork int    `json:"totalWork"`
	Complete  bool   `json:"complete"`
}
