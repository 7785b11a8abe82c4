package docpipe

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docharvest/kit"
)

// RegisterMCP registers the read-only docpipe tools on an MCP server.
func (l *Loader) RegisterMCP(srv *mcp.Server) {
	l.registerInspectTool(srv)
	l.registerDetectTool(srv)
	l.registerFormatsTool(srv)
}

// InputSchema builds a JSON object schema for MCP tool inputs.
func InputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- inspect ---

type inspectReq struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// Inspection is what docharvest_inspect returns: every artifact except the
// image payloads, which are only counted.
type Inspection struct {
	Name       string   `json:"name"`
	Format     Format   `json:"format"`
	Text       string   `json:"text"`
	Tables     []Table  `json:"tables"`
	ImageCount int      `json:"image_count"`
	Metadata   Metadata `json:"metadata"`
	Links      []string `json:"links"`
}

// Inspect loads a document and extracts everything without writing to disk.
func (l *Loader) Inspect(ctx context.Context, path string, format Format) (*Inspection, error) {
	var (
		h   *Handle
		err error
	)
	if format == "" {
		h, err = l.LoadFile(path)
	} else {
		h, err = l.Load(path, format)
	}
	if err != nil {
		return nil, err
	}
	eng := NewEngine(h, nil, l.logger)
	defer eng.Close()

	b, err := eng.Extract(ctx)
	if err != nil {
		return nil, err
	}
	return &Inspection{
		Name:       b.Name,
		Format:     b.Format,
		Text:       b.Text,
		Tables:     b.Tables,
		ImageCount: len(b.Images),
		Metadata:   b.Metadata,
		Links:      b.Links,
	}, nil
}

func (l *Loader) registerInspectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docharvest_inspect",
		Description: "Extract text, tables, metadata and links from a pdf, docx or pptx file without persisting anything.",
		InputSchema: InputSchema(map[string]any{
			"path":   map[string]any{"type": "string", "description": "File path to inspect"},
			"format": map[string]any{"type": "string", "description": "Declared format (pdf, docx, pptx); detected from the extension when empty"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*inspectReq)
		var format Format
		if r.Format != "" {
			f, err := ParseFormat(r.Format)
			if err != nil {
				return nil, err
			}
			format = f
		}
		return l.Inspect(ctx, r.Path, format)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r inspectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(l.logger, tool.Name)(endpoint), decode)
}

// --- detect ---

type detectReq struct {
	Path string `json:"path"`
}

func (l *Loader) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docharvest_detect",
		Description: "Detect the format of a document file from its extension.",
		InputSchema: InputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to detect"},
		}, []string{"path"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		format, err := l.Detect(r.Path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": string(format)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r detectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- formats ---

func (l *Loader) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docharvest_formats",
		Description: "List all supported document formats.",
		InputSchema: InputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
