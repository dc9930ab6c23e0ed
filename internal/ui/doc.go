// Package ui implements an interactive terminal dataset monitor using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [DatasetListView] : reconciled datasets in a table, refreshed on an interval
//  2. [DatasetDetailView] : parsed metadata of the selected dataset
//
// Every refresh goes through the same reconciliation as the web pages, so watching the table
// is enough to move pending datasets forward. A per-record reconciliation error is shown in the
// status line when that row is selected.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
