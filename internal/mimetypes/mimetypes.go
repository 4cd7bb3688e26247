// Package mimetypes is the narrow external collaborator spec §1/§6 calls
// out for MIME extension tables: a default extension-to-Content-Type
// table, adapted from the teacher's core/sendfile.GetContentType (the
// closest thing the teacher has to a MIME table; its router/context
// packages never build one of their own).
package mimetypes

import "path/filepath"

var defaultTable = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".xml":  "application/xml; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".woff": "font/woff",
	".woff2": "font/woff2",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".wasm": "application/wasm",
}

const defaultContentType = "application/octet-stream"

// Table maps file extensions to Content-Type values, queried once per
// served file in spec §4.5 step 9.
type Table struct {
	byExt map[string]string
}

// Default returns a Table seeded with the built-in extension list.
func Default() *Table {
	return &Table{byExt: defaultTable}
}

// Lookup returns the Content-Type for path's extension, or
// application/octet-stream if the extension is unknown.
func (t *Table) Lookup(path string) string {
	if ct, ok := t.byExt[filepath.Ext(path)]; ok {
		return ct
	}
	return defaultContentType
}
