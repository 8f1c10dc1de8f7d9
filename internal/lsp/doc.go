// Package lsp is the channel between the project manager and an editor
// client: a JSON-RPC 2.0 transport framed with LSP Content-Length headers,
// a Client that sends prompts, status and progress notifications, and a
// Server that feeds watched-file changes and command executions to the
// manager.
//
// Only the methods the manager needs are implemented:
//
//   - initialize, shutdown and exit
//   - workspace/didChangeWatchedFiles, forwarded to Manager.FileChanged
//   - workspace/executeCommand, forwarded to Manager.ExecuteCommand
//
// Outbound, the Client sends language/actionableNotification,
// language/status and language/progressReport.
package lsp
