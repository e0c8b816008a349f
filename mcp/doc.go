// Package mcp defines the Model Context Protocol wire types used by the
// Odoo MCP server: tool descriptors, content blocks, and the payloads of the
// initialize/tools methods. The types mirror the MCP schema but are trimmed
// to the tools-only surface this server exposes.
package mcp
