// Package mcpserver exposes persona resolution as Model Context Protocol
// tools so assistants can build characters from tag lists.
//
// Tools:
//
//   - resolve_persona: tags → traits, skills and summary
//   - list_tags: the known tag vocabulary
//   - export_persona: tags and a name → definition XML
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/personaforge/internal/export"
	"github.com/MrWong99/personaforge/internal/resolve"
	"github.com/MrWong99/personaforge/internal/rules"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// ResolveInput is the argument of resolve_persona.
type ResolveInput struct {
	Tags []string `json:"tags" jsonschema:"visual tags such as scar, halo or red_jacket"`
}

// TraitOutput is one resolved trait.
type TraitOutput struct {
	Def      string `json:"def"`
	Degree   int    `json:"degree"`
	Category string `json:"category"`
}

// SkillOutput is one accumulated skill bonus.
type SkillOutput struct {
	Name    string `json:"name"`
	Bonus   int    `json:"bonus"`
	Passion string `json:"passion"`
}

// PersonaOutput is the result of resolve_persona.
type PersonaOutput struct {
	MatchedTags   []string          `json:"matchedTags"`
	UnmatchedTags []string          `json:"unmatchedTags"`
	Traits        []TraitOutput     `json:"traits"`
	Skills        []SkillOutput     `json:"skills"`
	Summary       string            `json:"summary"`
	Suggestions   map[string]string `json:"suggestions,omitempty"`
}

// ListTagsInput is the (empty) argument of list_tags.
type ListTagsInput struct{}

// ListTagsOutput is the result of list_tags.
type ListTagsOutput struct {
	Tags []string `json:"tags"`
}

// ExportInput is the argument of export_persona.
type ExportInput struct {
	Tags        []string `json:"tags" jsonschema:"visual tags of the character"`
	Name        string   `json:"name" jsonschema:"display name of the character"`
	Title       string   `json:"title,omitempty" jsonschema:"backstory title"`
	Description string   `json:"description,omitempty" jsonschema:"backstory description"`
}

// ExportOutput is the result of export_persona.
type ExportOutput struct {
	DefName  string `json:"defName"`
	FileName string `json:"fileName"`
	Document string `json:"document"`
}

// Server serves the persona tools.
type Server struct {
	rules    *rules.Store
	resolver *resolve.Resolver
	server   *mcp.Server
}

// New builds the MCP server and registers its tools.
func New(store *rules.Store, resolver *resolve.Resolver) *Server {
	s := &Server{
		rules:    store,
		resolver: resolver,
		server:   mcp.NewServer(&mcp.Implementation{Name: "personaforge", Version: Version}, nil),
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "resolve_persona",
		Description: "Resolve visual tags into RimWorld traits and skill bonuses without conflicts.",
	}, s.resolvePersona)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_tags",
		Description: "List every visual tag the rule table knows.",
	}, s.listTags)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "export_persona",
		Description: "Resolve visual tags and render a RimWorld PawnKindDef and BackstoryDef document.",
	}, s.exportPersona)
	return s
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve serves over an arbitrary transport.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	if err := s.server.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.server }

func (s *Server) resolvePersona(ctx context.Context, _ *mcp.CallToolRequest, in ResolveInput) (*mcp.CallToolResult, PersonaOutput, error) {
	p := s.resolver.ResolveContext(ctx, in.Tags)
	out := toOutput(p)
	return textResult(p.Summary), out, nil
}

func (s *Server) listTags(_ context.Context, _ *mcp.CallToolRequest, _ ListTagsInput) (*mcp.CallToolResult, ListTagsOutput, error) {
	tags := s.rules.AllTags()
	return textResult(strings.Join(tags, ", ")), ListTagsOutput{Tags: tags}, nil
}

func (s *Server) exportPersona(ctx context.Context, _ *mcp.CallToolRequest, in ExportInput) (*mcp.CallToolResult, ExportOutput, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ExportOutput{}, errors.New("name is required")
	}
	p := s.resolver.ResolveContext(ctx, in.Tags)
	doc := export.Build(p, in.Name, export.WithTitle(in.Title), export.WithDescription(in.Description))
	data, err := doc.Bytes()
	if err != nil {
		return nil, ExportOutput{}, err
	}
	out := ExportOutput{DefName: doc.PawnKind.DefName, FileName: doc.FileName(), Document: string(data)}
	return textResult(out.Document), out, nil
}

func toOutput(p resolve.Persona) PersonaOutput {
	out := PersonaOutput{
		MatchedTags:   nonNil(p.MatchedTags),
		UnmatchedTags: nonNil(p.UnmatchedTags),
		Traits:        make([]TraitOutput, 0, len(p.Traits)),
		Skills:        make([]SkillOutput, 0, p.Skills.Len()),
		Summary:       p.Summary,
		Suggestions:   p.Suggestions,
	}
	for _, t := range p.Traits {
		out.Traits = append(out.Traits, TraitOutput{Def: t.Def, Degree: t.Degree, Category: string(t.Category)})
	}
	for _, sk := range p.Skills.All() {
		out.Skills = append(out.Skills, SkillOutput{Name: sk.Name, Bonus: sk.Bonus, Passion: sk.Passion.Label()})
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
