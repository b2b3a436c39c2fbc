package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type articlesSearchInput struct {
	Title *string `json:"title,omitempty" jsonschema:"Case-insensitive title prefix. Omit to match any title."`
	Tag   *string `json:"tag,omitempty"   jsonschema:"Case-insensitive tag, matched exactly against each tag. Omit to match any tag."`
}

type articleIDInput struct {
	ID string `json:"id" jsonschema:"The article ID"`
}

type articleCreateInput struct {
	Title  string   `json:"title"  jsonschema:"Article title"`
	URL    string   `json:"url"    jsonschema:"Article URL"`
	Tags   []string `json:"tags"   jsonschema:"Tags, may be empty"`
	Source string   `json:"source" jsonschema:"Where the article came from, e.g. Qiita or manual"`
}

type articleUpdateInput struct {
	ID     string    `json:"id"               jsonschema:"The article ID to update"`
	Title  *string   `json:"title,omitempty"  jsonschema:"New title"`
	URL    *string   `json:"url,omitempty"    jsonschema:"New URL"`
	Tags   *[]string `json:"tags,omitempty"   jsonschema:"Replacement tag list"`
	Source *string   `json:"source,omitempty" jsonschema:"New source label"`
}

type emptyInput struct{}
