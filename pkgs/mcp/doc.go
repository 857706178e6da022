// Package mcp exposes mailbox retrieval, deletion and sending as MCP
// (Model Context Protocol) tools for AI agents.
//
// The full profile registers five tools:
//
//   - pollEmails: fetch and normalize every message in the mailbox
//   - getEmailsById: fetch and normalize the messages at the given ordinals
//   - deleteEmailsById: delete the messages at the given ordinals
//   - sendTextEmail: send a text/plain message through the relay
//   - sendHtmlEmail: send a text/html message through the relay
//
// The send profile registers only the two send tools. Ordinals are 1-based
// positions in the mailbox listing and shift after a delete is committed.
//
// The server speaks STDIO by default, or streamable HTTP when started with
// the http transport.
package mcp
