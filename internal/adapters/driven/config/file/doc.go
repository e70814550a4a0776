// Package file keeps user-editable state on the local filesystem.
//
//   - ConfigStore: config.toml holding the engine and default backend settings
//   - PromptStore: the analysis preamble as plain text files, with an
//     fsnotify watcher that reloads them while a server is running
package file
