package pipeline

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docharvest/docpipe"
	"github.com/hazyhaar/docharvest/kit"
)

// RegisterMCP registers the loader's read-only tools plus the persisting
// docharvest_process and docharvest_get tools.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.loader.RegisterMCP(srv)
	p.registerProcessTool(srv)
	p.registerGetTool(srv)
}

type processReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerProcessTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docharvest_process",
		Description: "Extract a pdf, docx or pptx file and persist its artifacts to the output directory and the database.",
		InputSchema: docpipe.InputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to process"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*processReq)
		if r.Path == "" {
			return nil, errors.New("path is required")
		}
		res := p.Process(ctx, r.Path)
		if res.LoadErr != nil {
			return nil, res.LoadErr
		}
		return res, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(p.logger, tool.Name)(endpoint), kit.DecodeArgs[processReq])
}

type getReq struct {
	ID string `json:"id"`
}

func (p *Pipeline) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docharvest_get",
		Description: "Return a stored document with its text, tables, image paths, metadata and links.",
		InputSchema: docpipe.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Document id returned by docharvest_process"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		if p.db == nil {
			return nil, errors.New("database sink is disabled")
		}
		return p.db.Get(ctx, req.(*getReq).ID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[getReq])
}
