// Package extraction converts uploaded documents into plain text.
//
// A Registry maps MIME types to Extractors. The default registry handles
// plain text, markdown, HTML (converted to markdown), PDF and DOCX; any
// other type yields core.ErrUnsupportedType.
package extraction
