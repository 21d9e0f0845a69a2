// Package mcpserver exposes the blog operations as MCP (Model Context
// Protocol) tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/inkwell/internal/blogservice"
	"github.com/starford/inkwell/internal/models"
)

// FormatURI names the blog format resource.
const FormatURI = "inkwell://blog-format"

// Server wraps the MCP server with the blog tools.
type Server struct {
	mcp   *server.MCPServer
	blogs *blogservice.Holder
	fetch fetchFunc
}

// New creates a server with every tool registered.
func New(blogs *blogservice.Holder, version string) *Server {
	s := &Server{blogs: blogs, fetch: fetchHTTP}

	s.mcp = server.NewMCPServer(
		"Inkwell",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_blogs",
		mcp.WithDescription("List every blog in the repository index, in index order."),
	), s.listBlogs)

	s.mcp.AddTool(mcp.NewTool("get_blog",
		mcp.WithDescription("Read one blog record by slug."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Blog slug, e.g. my-first-post")),
	), s.getBlog)

	s.mcp.AddTool(mcp.NewTool("save_blog",
		mcp.WithDescription("Create a blog or replace the one with the same slug. "+
			"Every save is a commit on the configured branch. Read the contract first via "+
			"get_blog_contract or the "+FormatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Blog title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("HTML body")),
		mcp.WithString("slug", mcp.Description("Slug; derived from the title when empty")),
		mcp.WithString("shortDescription", mcp.Description("Optional summary")),
		mcp.WithString("image", mcp.Description("Cover image: absolute URL or data:image/... URI")),
	), s.saveBlog)

	s.mcp.AddTool(mcp.NewTool("delete_blog",
		mcp.WithDescription("Remove a blog from the index. The record file stays in history."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Blog slug")),
	), s.deleteBlog)

	s.mcp.AddTool(mcp.NewTool("set_blog_image",
		mcp.WithDescription("Download an image over http(s), or take a data URI, and store it as "+
			"the cover image of an existing blog."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Blog slug")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/... URI")),
	), s.setBlogImage)

	s.mcp.AddTool(mcp.NewTool("get_blog_contract",
		mcp.WithDescription("Returns the blog record format. Call this before saving."),
	), s.getBlogContract)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Blog Format Contract",
			mcp.WithResourceDescription("JSON shape and rules of a blog record."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func optString(req mcp.CallToolRequest, key string) string {
	v, err := req.RequireString(key)
	if err != nil {
		return ""
	}
	return v
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func mutationResult(res blogservice.MutationResult, done string) *mcp.CallToolResult {
	if res.Error != "" {
		if res.Partial {
			return mcp.NewToolResultError(fmt.Sprintf("%s (partially applied, committed: %v)", res.Error, res.Committed))
		}
		return mcp.NewToolResultError(res.Error)
	}
	return mcp.NewToolResultText(done)
}

func (s *Server) listBlogs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.blogs.Current().ListBlogs(ctx)
	if res.Error != "" {
		return mcp.NewToolResultError(res.Error), nil
	}
	return jsonResult(res.Blogs), nil
}

func (s *Server) getBlog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.blogs.Current().GetBlog(ctx, slug)
	if res.Error != "" {
		return mcp.NewToolResultError(res.Error), nil
	}
	return jsonResult(res.Blog), nil
}

func (s *Server) saveBlog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := models.Blog{
		Slug:             optString(req, "slug"),
		Title:            title,
		ShortDescription: optString(req, "shortDescription"),
		Content:          content,
		Image:            optString(req, "image"),
	}
	return mutationResult(s.blogs.Current().SaveBlog(ctx, b), "saved: "+b.Title), nil
}

func (s *Server) deleteBlog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mutationResult(s.blogs.Current().DeleteBlog(ctx, slug), "deleted: "+slug), nil
}

func (s *Server) getBlogContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BlogFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     BlogFormatContract,
		},
	}, nil
}
