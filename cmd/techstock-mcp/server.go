package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matthewjhunter/techstock"
)

const version = "0.1.0"

// server is the techstock MCP server.
type server struct {
	engine *techstock.Engine
	mcp    *mcp.Server
	poller *poller // non-nil when --poll is enabled
}

func newServer(engine *techstock.Engine) *server {
	s := &server{engine: engine}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "techstock", Version: version}, nil)
	s.registerTools()
	return s
}

// run serves MCP over stdin/stdout until the client disconnects or ctx ends.
func (s *server) run(ctx context.Context) error {
	log.Printf("techstock-mcp starting (store=%s)", s.engine.Config().Store.Driver)
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "articles_list",
		Description: "List every saved article with its title, URL, tags, source and timestamps.",
	}, s.articlesList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "articles_search",
		Description: "Search saved articles by case-insensitive title prefix and/or exact tag. Both filters are optional and combine with AND.",
	}, s.articlesSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "articles_get",
		Description: "Get one saved article by ID.",
	}, s.articlesGet)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "articles_create",
		Description: "Save a new article. The server assigns the ID and timestamps.",
	}, s.articlesCreate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "articles_update",
		Description: "Change the title, URL, tags or source of a saved article. Only the fields given are changed.",
	}, s.articlesUpdate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "articles_delete",
		Description: "Delete a saved article and return it as it was.",
	}, s.articlesDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "qiita_import",
		Description: "Import the configured user's Qiita stocks now. Articles already saved are skipped. Returns total, new and saved counts.",
	}, s.qiitaImport)
}

// jsonResult renders v as indented JSON text content.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func (s *server) articlesList(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	articles, err := s.engine.ListArticles(ctx)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(articles)
}

func (s *server) articlesSearch(ctx context.Context, _ *mcp.CallToolRequest, in articlesSearchInput) (*mcp.CallToolResult, any, error) {
	var title, tag string
	if in.Title != nil {
		title = *in.Title
	}
	if in.Tag != nil {
		tag = *in.Tag
	}
	articles, err := s.engine.SearchArticles(ctx, title, tag)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(articles)
}

func (s *server) articlesGet(ctx context.Context, _ *mcp.CallToolRequest, in articleIDInput) (*mcp.CallToolResult, any, error) {
	article, err := s.engine.GetArticle(ctx, in.ID)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(article)
}

func (s *server) articlesCreate(ctx context.Context, _ *mcp.CallToolRequest, in articleCreateInput) (*mcp.CallToolResult, any, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	article, err := s.engine.CreateArticle(ctx, techstock.ArticleInput{
		Title:  &in.Title,
		URL:    &in.URL,
		Tags:   &tags,
		Source: &in.Source,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(article)
}

func (s *server) articlesUpdate(ctx context.Context, _ *mcp.CallToolRequest, in articleUpdateInput) (*mcp.CallToolResult, any, error) {
	article, err := s.engine.UpdateArticle(ctx, in.ID, techstock.ArticlePatch{
		Title:  in.Title,
		URL:    in.URL,
		Tags:   in.Tags,
		Source: in.Source,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(article)
}

func (s *server) articlesDelete(ctx context.Context, _ *mcp.CallToolRequest, in articleIDInput) (*mcp.CallToolResult, any, error) {
	article, err := s.engine.DeleteArticle(ctx, in.ID)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(techstock.DeleteResult{
		Message:        "Article deleted successfully",
		DeletedArticle: *article,
	})
}

func (s *server) qiitaImport(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	var (
		result *techstock.ImportResult
		err    error
	)
	if s.poller != nil {
		result, err = s.poller.poll(ctx)
	} else {
		result, err = s.engine.ImportQiita(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(result)
}
